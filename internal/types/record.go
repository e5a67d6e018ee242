// Package types provides shared types used across the dupevid codebase.
package types

import (
	"cmp"
	"os"
	"slices"
	"syscall"
	"time"
)

// FileRecord holds metadata for a discovered video file.
// Immutable once captured by the walker.
type FileRecord struct {
	Path        string    `json:"path" yaml:"path"`
	Size        int64     `json:"size" yaml:"size"`
	CreatedTime time.Time `json:"created_time" yaml:"created_time"`
	ModTime     time.Time `json:"-" yaml:"-"`
	Ino         uint64    `json:"-" yaml:"-"`
}

// NewFileRecord creates a FileRecord from os.FileInfo and path.
func NewFileRecord(path string, info os.FileInfo) FileRecord {
	rec := FileRecord{
		Path:        path,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		CreatedTime: info.ModTime(),
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		rec.Ino = stat.Ino
		if ct := createdTime(stat); !ct.IsZero() {
			rec.CreatedTime = ct
		}
	}
	return rec
}

// Stat captures a FileRecord for path.
func Stat(path string) (FileRecord, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileRecord{}, err
	}
	return NewFileRecord(path, info), nil
}

// Sorted is an ordered collection that maintains sort order by a key function.
// T is the element type, K is the comparable key type.
// Once constructed, items are guaranteed to be sorted by key.
type Sorted[T any, K cmp.Ordered] struct {
	items   []T
	keyFunc func(T) K
}

// NewSorted creates a sorted collection from items using keyFunc for ordering.
// Items are copied and sorted at construction time.
func NewSorted[T any, K cmp.Ordered](items []T, keyFunc func(T) K) Sorted[T, K] {
	sorted := make([]T, len(items))
	copy(sorted, items)
	slices.SortStableFunc(sorted, func(a, b T) int {
		return cmp.Compare(keyFunc(a), keyFunc(b))
	})
	return Sorted[T, K]{items: sorted, keyFunc: keyFunc}
}

// Items returns the sorted items.
func (s Sorted[T, K]) Items() []T { return s.items }

// First returns the first item (smallest key), or zero value if empty.
func (s Sorted[T, K]) First() T {
	if len(s.items) == 0 {
		var zero T
		return zero
	}
	return s.items[0]
}

// Len returns the number of items.
func (s Sorted[T, K]) Len() int { return len(s.items) }

// DuplicateGroup holds files sharing one content digest.
// Files are always sorted by Path for deterministic output.
type DuplicateGroup struct {
	Digest string
	Files  Sorted[FileRecord, string]
}

// NewDuplicateGroup creates a DuplicateGroup with files sorted by path.
func NewDuplicateGroup(digest string, files []FileRecord) DuplicateGroup {
	return DuplicateGroup{
		Digest: digest,
		Files:  NewSorted(files, func(f FileRecord) string { return f.Path }),
	}
}

// Paths returns member paths in sorted order.
func (g DuplicateGroup) Paths() []string {
	paths := make([]string, 0, g.Files.Len())
	for _, f := range g.Files.Items() {
		paths = append(paths, f.Path)
	}
	return paths
}

// WastedBytes returns the bytes occupied by all copies but one.
func (g DuplicateGroup) WastedBytes() int64 {
	if g.Files.Len() < 2 {
		return 0
	}
	return g.Files.First().Size * int64(g.Files.Len()-1)
}

// DuplicateGroups is a collection of duplicate groups sorted by digest.
type DuplicateGroups = Sorted[DuplicateGroup, string]

// NewDuplicateGroups creates DuplicateGroups sorted by digest.
func NewDuplicateGroups(groups []DuplicateGroup) DuplicateGroups {
	return NewSorted(groups, func(g DuplicateGroup) string { return g.Digest })
}

// Semaphore implements a counting semaphore using a buffered channel.
// It limits concurrent access to a resource by blocking when the limit is reached.
type Semaphore chan struct{}

// NewSemaphore creates a semaphore that allows up to n concurrent acquisitions.
func NewSemaphore(n int) Semaphore { return make(chan struct{}, n) }

// Acquire blocks until a slot is available, then claims it.
func (s Semaphore) Acquire() { s <- struct{}{} }

// Release frees a slot, unblocking one waiting Acquire call.
func (s Semaphore) Release() { <-s }
