// Package grouper collects content digests and reports duplicate groups.
//
// # Overview
//
//	Add(digest, record)   [concurrent, from hashing workers]
//	    │
//	    ├──► empty digest → ignored (skipped file)
//	    ├──► append to byDigest[digest]
//	    └──► mark digest dirty
//
//	Drain()               [after each batch]
//	    └──► dirty digests with 2+ members → sorted DuplicateGroups
//
//	Duplicates()          [end of scan]
//	    └──► every digest with 2+ members → sorted DuplicateGroups
//
// Grouping keys only by digest value, so the order in which workers finish
// has no effect on the result.
package grouper

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/ivoronin/dupevid/internal/types"
)

// Grouper accumulates hashed files. Safe for concurrent use.
type Grouper struct {
	mu       sync.Mutex
	byDigest map[string][]types.FileRecord
	dirty    map[string]struct{}
	files    int
}

// New creates an empty Grouper.
func New() *Grouper {
	return &Grouper{
		byDigest: make(map[string][]types.FileRecord),
		dirty:    make(map[string]struct{}),
	}
}

// Add records rec under digest. Empty digests are ignored.
// Returns true when the digest now has two or more members.
func (g *Grouper) Add(digest string, rec types.FileRecord) bool {
	if digest == "" {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	g.byDigest[digest] = append(g.byDigest[digest], rec)
	g.dirty[digest] = struct{}{}
	g.files++
	return len(g.byDigest[digest]) >= 2
}

// Drain returns the duplicate groups changed since the previous Drain.
func (g *Grouper) Drain() []types.DuplicateGroup {
	g.mu.Lock()
	defer g.mu.Unlock()

	var changed []types.DuplicateGroup
	for digest := range g.dirty {
		if files := g.byDigest[digest]; len(files) >= 2 {
			changed = append(changed, types.NewDuplicateGroup(digest, files))
		}
	}
	clear(g.dirty)
	return types.NewDuplicateGroups(changed).Items()
}

// Duplicates returns every group with two or more members.
func (g *Grouper) Duplicates() types.DuplicateGroups {
	g.mu.Lock()
	defer g.mu.Unlock()

	var result []types.DuplicateGroup
	for digest, files := range g.byDigest {
		if len(files) >= 2 {
			result = append(result, types.NewDuplicateGroup(digest, files))
		}
	}
	return types.NewDuplicateGroups(result)
}

// Files returns how many files with a usable digest have been added.
func (g *Grouper) Files() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.files
}

// Summary describes a set of duplicate groups for humans.
type Summary struct {
	Groups      int
	Files       int
	WastedBytes int64
}

// Summarize computes totals over groups.
func Summarize(groups types.DuplicateGroups) Summary {
	var s Summary
	for _, g := range groups.Items() {
		s.Groups++
		s.Files += g.Files.Len()
		s.WastedBytes += g.WastedBytes()
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("%d duplicate files in %d groups (%s reclaimable)",
		s.Files, s.Groups, humanize.IBytes(uint64(s.WastedBytes)))
}
