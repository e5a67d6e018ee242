package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"

	"github.com/ivoronin/dupevid/internal/walker"
)

// collectDirectories merges positional and flag directories, keeping the
// first occurrence of each.
func collectDirectories(args, flagged []string) []string {
	var dirs []string
	for _, d := range slices.Concat(args, flagged) {
		if d != "" && !slices.Contains(dirs, d) {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// existingDirectories returns the directories that exist, calling missing
// for each one that does not.
func existingDirectories(dirs []string, missing func(dir string)) []string {
	var out []string
	for _, d := range dirs {
		info, err := os.Stat(d)
		if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
			missing(d)
			continue
		}
		out = append(out, d)
	}
	return out
}

// validateExtensions normalizes extensions and rejects ones containing a
// path separator.
func validateExtensions(exts []string) ([]string, error) {
	for _, ext := range exts {
		if strings.ContainsRune(ext, os.PathSeparator) {
			return nil, fmt.Errorf("extension %q: contains a path separator", ext)
		}
	}
	normalized := walker.NormalizeExtensions(exts)
	if len(normalized) == 0 {
		return nil, errors.New("no usable extensions")
	}
	return normalized, nil
}

// drainErrors consumes errors from a channel and writes them to stderr.
// Clears progress bar line before printing to avoid visual collision.
func drainErrors(errs <-chan error, done chan<- struct{}) {
	defer close(done)
	for err := range errs {
		fmt.Fprintf(os.Stderr, "\r\033[Kerror: %v\n", err)
	}
}
