package scan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ivoronin/dupevid/internal/pathfilter"
	"github.com/ivoronin/dupevid/internal/pool"
	"github.com/ivoronin/dupevid/internal/throttle"
	"github.com/ivoronin/dupevid/internal/walker"
)

// ErrNoValidRoots is reported when none of the requested roots is a readable directory.
var ErrNoValidRoots = errors.New("no valid directories to scan")

// DefaultRoots are scanned when a host starts a scan without naming roots.
var DefaultRoots = []string{"/", "/home", "/media", "/mnt", "/storage"}

// Options configures one scan.
type Options struct {
	Roots             []string
	Extensions        []string
	CPUCeilingPercent float64
	BatchSize         int
	Workers           int
	Filter            *pathfilter.Filter // nil means pathfilter.Default()
}

// withDefaults fills zero fields.
func (o Options) withDefaults() Options {
	if len(o.Extensions) == 0 {
		o.Extensions = walker.DefaultExtensions
	}
	if o.CPUCeilingPercent <= 0 {
		o.CPUCeilingPercent = throttle.DefaultCeiling
	}
	if o.BatchSize <= 0 {
		o.BatchSize = pool.DefaultBatchSize
	}
	if o.Workers <= 0 {
		o.Workers = pool.DefaultWorkers
	}
	if o.Filter == nil {
		o.Filter = pathfilter.Default()
	}
	return o
}

// ValidateRoots resolves roots to absolute directories, skipping missing
// or non-directory entries through skip, and dropping roots nested inside
// another root so no file is enumerated twice.
func ValidateRoots(roots []string, skip func(root string, err error)) ([]string, error) {
	var valid []string
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			skip(root, err)
			continue
		}
		info, err := os.Stat(abs)
		if err != nil {
			skip(root, err)
			continue
		}
		if !info.IsDir() {
			skip(root, fmt.Errorf("%s: not a directory", abs))
			continue
		}
		valid = append(valid, abs)
	}
	if len(valid) == 0 {
		return nil, ErrNoValidRoots
	}

	// Shortest first so parents are kept before their descendants
	slices.SortFunc(valid, func(a, b string) int { return len(a) - len(b) })
	var result []string
	for _, root := range valid {
		nested := slices.ContainsFunc(result, func(parent string) bool {
			return root == parent || parent == "/" || strings.HasPrefix(root, parent+string(filepath.Separator))
		})
		if !nested {
			result = append(result, root)
		}
	}
	return result, nil
}

// ExistingRoots filters DefaultRoots-style lists down to directories that exist.
func ExistingRoots(roots []string) []string {
	var out []string
	for _, r := range roots {
		if info, err := os.Stat(r); err == nil && info.IsDir() {
			out = append(out, r)
		}
	}
	return out
}
