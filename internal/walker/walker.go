// Package walker enumerates candidate video files beneath a scan root.
//
// # Traversal
//
// The walk is depth-first and lazy: Walk returns an iter.Seq and nothing is
// read until the consumer ranges over it. Each directory is listed in
// batches of 1000 entries so huge directories never sit in memory at once.
//
//	walkDirectory(dir)
//	    │
//	    ├──► ReadDir(1000) ──► sort batch by name
//	    │
//	    └──► for each entry:
//	             ├──► gate.Wait()            [cancel → stop, pause → block]
//	             ├──► dir excluded?          → prune (never opened)
//	             ├──► dir                    → walkDirectory(child)
//	             ├──► not regular / no ext   → skip
//	             └──► yield FileRecord       [consumer may stop the walk]
//
// # Errors
//
// Unreadable directories and files that vanish between listing and stat
// are reported through Options.OnError and skipped. The walk continues.
package walker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ivoronin/dupevid/internal/gate"
	"github.com/ivoronin/dupevid/internal/logging"
	"github.com/ivoronin/dupevid/internal/pathfilter"
	"github.com/ivoronin/dupevid/internal/types"
)

// listBatch bounds memory when listing directories with millions of entries.
const listBatch = 1000

// DefaultExtensions are the video container suffixes scanned by default.
var DefaultExtensions = []string{".mp4", ".avi", ".mkv", ".mov", ".wmv", ".flv", ".webm"}

var logger = logging.Get("walker")

// Options configures a walk. Every field is optional; empty Extensions
// means DefaultExtensions.
type Options struct {
	Extensions []string
	Filter     *pathfilter.Filter
	Gate       *gate.Gate
	OnError    func(error)
}

// NormalizeExtensions lowercases extensions, adds a leading dot where
// missing, and drops blanks and duplicates.
func NormalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" || ext == "." {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if !slices.Contains(out, ext) {
			out = append(out, ext)
		}
	}
	return out
}

// walker holds per-invocation state. A fresh one is built for every range
// over the sequence, so walks are restartable.
type walker struct {
	ctx   context.Context
	opts  Options
	exts  []string
	yield func(types.FileRecord) bool
}

// Walk returns the video files under root in depth-first order.
// The sequence ends early when the gate is cancelled, ctx ends, or the
// consumer stops ranging.
func Walk(ctx context.Context, root string, opts Options) iter.Seq[types.FileRecord] {
	exts := NormalizeExtensions(opts.Extensions)
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	return func(yield func(types.FileRecord) bool) {
		w := &walker{ctx: ctx, opts: opts, exts: exts, yield: yield}

		absRoot, err := filepath.Abs(root)
		if err != nil {
			w.report(err)
			return
		}
		if opts.Filter.IsExcluded(absRoot) {
			logger.Warn("scan root is excluded", "root", absRoot)
			return
		}
		w.walkDirectory(absRoot)
	}
}

// walkDirectory lists dir and descends into subdirectories.
// Returns false when the whole walk must stop.
func (w *walker) walkDirectory(dir string) bool {
	d, err := os.Open(dir)
	if err != nil {
		w.report(fmt.Errorf("%s: %w", dir, err))
		return true
	}
	defer func() { _ = d.Close() }()

	for {
		entries, err := d.ReadDir(listBatch)
		slices.SortFunc(entries, func(a, b os.DirEntry) int { return strings.Compare(a.Name(), b.Name()) })

		for _, entry := range entries {
			if err := w.opts.Gate.Wait(w.ctx); err != nil {
				logger.Debug("walk interrupted", "dir", dir, "reason", err)
				return false
			}
			if !w.processEntry(dir, entry) {
				return false
			}
		}

		if err != nil {
			if !errors.Is(err, io.EOF) {
				w.report(fmt.Errorf("%s: %w", dir, err))
			}
			return true
		}
		if len(entries) == 0 {
			return true
		}
	}
}

// processEntry handles one directory entry.
// Returns false when the walk must stop.
func (w *walker) processEntry(dir string, entry os.DirEntry) bool {
	fullPath := filepath.Join(dir, entry.Name())

	if entry.IsDir() {
		if w.opts.Filter.IsExcluded(fullPath) {
			logger.Debug("pruning excluded directory", "path", fullPath)
			return true
		}
		return w.walkDirectory(fullPath)
	}

	// Skip non-regular files (symlinks, devices, sockets, etc.)
	if !entry.Type().IsRegular() || !w.matches(entry.Name()) {
		return true
	}

	info, err := entry.Info()
	if err != nil {
		w.report(fmt.Errorf("%s: %w", fullPath, err))
		return true
	}
	return w.yield(types.NewFileRecord(fullPath, info))
}

// matches reports whether name ends with an accepted extension (case-insensitive).
func (w *walker) matches(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range w.exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func (w *walker) report(err error) {
	logger.Debug("skipping unreadable entry", "err", err)
	if w.opts.OnError != nil {
		w.opts.OnError(err)
	}
}
