//go:build unix

package testfs

import (
	"path/filepath"
	"slices"
	"testing"

	"github.com/ivoronin/dupevid/internal/types"
)

// -----------------------------------------------------------------------------
// Harness - Integration Test API
// -----------------------------------------------------------------------------

// Harness creates a FileTree under t.TempDir() and checks scan results
// against it.
//
// All volumes are directories on the same filesystem.
type Harness struct {
	t       *testing.T
	root    string
	given   FileTree
	digests map[string]string // Absolute path -> expected content digest
}

// New creates the given tree in a temporary directory, removed with the test.
func New(t *testing.T, given FileTree) *Harness {
	t.Helper()

	h := &Harness{
		t:       t,
		root:    t.TempDir(),
		given:   given,
		digests: make(map[string]string),
	}
	if err := SowFileTree(h.root, given); err != nil {
		t.Fatalf("failed to setup files: %v", err)
	}

	for _, vol := range given.Volumes {
		for _, f := range vol.Files {
			digest := f.Digest()
			for _, p := range f.Path {
				h.digests[filepath.Join(h.root, vol.MountPoint, p)] = digest
			}
		}
	}
	return h
}

// Root returns the temporary directory root path.
func (h *Harness) Root() string {
	return h.root
}

// Path converts a "/volume/relative" path to an absolute one.
func (h *Harness) Path(p string) string {
	return filepath.Join(h.root, p)
}

// Volumes returns the absolute path of every volume, in spec order.
func (h *Harness) Volumes() []string {
	var out []string
	for _, vol := range h.given.Volumes {
		p := h.Path(vol.MountPoint)
		if !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}

// AssertGroups verifies that actual holds exactly the expected groups and
// that every group is keyed by its members' content digest.
func (h *Harness) AssertGroups(actual map[string][]types.FileRecord, expected Groups) {
	h.t.Helper()

	got := make(map[string][]string, len(actual))
	for digest, files := range actual {
		for _, f := range files {
			got[digest] = append(got[digest], f.Path)
		}
	}

	want := make([][]string, 0, len(expected))
	for _, group := range expected {
		abs := make([]string, 0, len(group))
		for _, p := range group {
			abs = append(abs, h.Path(p))
		}
		want = append(want, abs)
	}

	for _, msg := range DiffGroups(want, got) {
		h.t.Error(msg)
	}
	for _, msg := range DiffDigests(h.digests, got) {
		h.t.Error(msg)
	}
}
