// Package testfs builds declarative file trees for scan tests and checks
// the duplicate groups a scan reports against them.
//
// # FileTree Specification
//
// A tree is a list of volumes (top-level directories under the harness
// root) holding files described by content chunks:
//
//	given := testfs.FileTree{
//	    Volumes: []testfs.Volume{
//	        {
//	            MountPoint: "/movies",
//	            Files: []testfs.File{
//	                {Path: []string{"a.mp4", "backup/a.mp4"}, Chunks: []testfs.Chunk{{Pattern: 'A', Size: "1MiB"}}},
//	                {Path: []string{"b.mkv"}, Chunks: []testfs.Chunk{{Pattern: 'A', Size: "1MiB"}}},
//	            },
//	            Symlinks: []testfs.Symlink{{Path: "latest.mp4", Target: "a.mp4"}},
//	        },
//	    },
//	}
//
// Path[0] of a File is written with its chunks; Path[1:] are hardlinks to
// it. Subdirectories are created automatically (mkdir -p semantics).
//
// Expected results name groups by "volume/relative" paths:
//
//	h := testfs.New(t, given)
//	state := runScan(h.Volumes())
//	h.AssertGroups(state.DuplicateGroups, testfs.Groups{
//	    {"/movies/a.mp4", "/movies/b.mkv", "/movies/backup/a.mp4"},
//	})
//
// Digests are checked too: every reported group must be keyed by the
// SHA-256 of the content its members were created with.
package testfs

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/dustin/go-humanize"
)

// -----------------------------------------------------------------------------
// FileTree Specification Types
// -----------------------------------------------------------------------------

// FileTree describes a filesystem to create.
type FileTree struct {
	Volumes []Volume `json:"volumes"`
}

// Volume is a top-level directory of the tree.
type Volume struct {
	// MountPoint is the volume path relative to the harness root, e.g. "/movies".
	MountPoint string `json:"mountPoint"`

	// Files in this volume (regular files, possibly hardlinked).
	Files []File `json:"files,omitempty"`

	// Symlinks in this volume.
	Symlinks []Symlink `json:"symlinks,omitempty"`
}

// File defines a regular file, possibly with hardlinks.
//
// Content is specified via Chunks; each chunk fills a region with its
// pattern byte. Same chunks = same content = duplicates detected.
type File struct {
	// Path contains one or more paths relative to the volume.
	// Multiple paths indicate hardlinks sharing the same inode.
	Path []string `json:"path"`

	// Chunks specifies file content as a sequence of filled regions.
	// Use IEC units for sizes: "1KiB", "1MiB". An empty list makes an empty file.
	Chunks []Chunk `json:"chunks,omitempty"`
}

// Chunk defines a region of file content filled with a pattern byte.
type Chunk struct {
	Pattern rune   `json:"pattern"`
	Size    string `json:"size"` // Parsed via go-humanize
}

// TotalSize calculates the sum of all chunk sizes in bytes.
func (f *File) TotalSize() int64 {
	var total int64
	for _, c := range f.Chunks {
		size, _ := humanize.ParseBytes(c.Size)
		total += int64(size)
	}
	return total
}

// Digest returns the hex SHA-256 of the content the chunks describe, or ""
// for an empty file.
func (f *File) Digest() string {
	if f.TotalSize() == 0 {
		return ""
	}
	h := sha256.New()
	for _, c := range f.Chunks {
		if err := writeChunk(h, c); err != nil {
			return ""
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Symlink defines a symbolic link.
type Symlink struct {
	// Path is relative to the volume.
	Path string `json:"path"`

	// Target is written verbatim; relative targets resolve from the link's directory.
	Target string `json:"target"`
}

// -----------------------------------------------------------------------------
// Expectation Types
// -----------------------------------------------------------------------------

// Groups lists expected duplicate groups. Each group holds "/volume/relative"
// paths; order inside and across groups does not matter.
type Groups [][]string
