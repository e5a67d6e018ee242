//go:build unix

package testfs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"slices"
	"syscall"
	"testing"

	"github.com/ivoronin/dupevid/internal/types"
)

// TestSowCreatesFilesCorrectly verifies that SowFileTree creates files with correct sizes and content.
func TestSowCreatesFilesCorrectly(t *testing.T) {
	root := t.TempDir()
	spec := FileTree{
		Volumes: []Volume{{
			MountPoint: "/vol1",
			Files: []File{
				{Path: []string{"a.mp4"}, Chunks: []Chunk{{Pattern: 'A', Size: "100"}}},
				{Path: []string{"deep/b.mkv"}, Chunks: []Chunk{{Pattern: 'B', Size: "50"}}},
				{Path: []string{"empty.mov"}},
			},
		}},
	}
	if err := SowFileTree(root, spec); err != nil {
		t.Fatalf("SowFileTree failed: %v", err)
	}

	tests := []struct {
		path string
		want []byte
	}{
		{"vol1/a.mp4", bytes.Repeat([]byte{'A'}, 100)},
		{"vol1/deep/b.mkv", bytes.Repeat([]byte{'B'}, 50)},
		{"vol1/empty.mov", []byte{}},
	}
	for _, tt := range tests {
		got, err := os.ReadFile(filepath.Join(root, tt.path))
		if err != nil {
			t.Errorf("read %s: %v", tt.path, err)
			continue
		}
		if !bytes.Equal(got, tt.want) {
			t.Errorf("%s: got %d bytes, want %d matching bytes", tt.path, len(got), len(tt.want))
		}
	}
}

// TestSowMultiChunkContent verifies chunks are written in order.
func TestSowMultiChunkContent(t *testing.T) {
	root := t.TempDir()
	spec := FileTree{Volumes: []Volume{{
		MountPoint: "/v",
		Files: []File{{Path: []string{"f.mp4"}, Chunks: []Chunk{
			{Pattern: 'X', Size: "3"}, {Pattern: 'Y', Size: "2"},
		}}},
	}}}
	if err := SowFileTree(root, spec); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(root, "v", "f.mp4"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "XXXYY" {
		t.Errorf("content = %q, want XXXYY", got)
	}
}

// TestSowCreatesHardlinksAndSymlinks verifies link creation.
func TestSowCreatesHardlinksAndSymlinks(t *testing.T) {
	root := t.TempDir()
	spec := FileTree{Volumes: []Volume{{
		MountPoint: "/v",
		Files:      []File{{Path: []string{"a.mp4", "links/a.mp4"}, Chunks: []Chunk{{Pattern: 'L', Size: "10"}}}},
		Symlinks:   []Symlink{{Path: "sym/a.mp4", Target: "../a.mp4"}},
	}}}
	if err := SowFileTree(root, spec); err != nil {
		t.Fatal(err)
	}

	var st1, st2 syscall.Stat_t
	if err := syscall.Stat(filepath.Join(root, "v/a.mp4"), &st1); err != nil {
		t.Fatal(err)
	}
	if err := syscall.Stat(filepath.Join(root, "v/links/a.mp4"), &st2); err != nil {
		t.Fatal(err)
	}
	if st1.Ino != st2.Ino {
		t.Errorf("hardlink inodes differ: %d != %d", st1.Ino, st2.Ino)
	}

	target, err := os.Readlink(filepath.Join(root, "v/sym/a.mp4"))
	if err != nil {
		t.Fatal(err)
	}
	if target != "../a.mp4" {
		t.Errorf("symlink target = %q, want ../a.mp4", target)
	}
}

// TestSowBadChunkSize verifies that an unparseable size is reported.
func TestSowBadChunkSize(t *testing.T) {
	spec := FileTree{Volumes: []Volume{{
		MountPoint: "/v",
		Files:      []File{{Path: []string{"f.mp4"}, Chunks: []Chunk{{Pattern: 'A', Size: "lots"}}}},
	}}}
	if err := SowFileTree(t.TempDir(), spec); err == nil {
		t.Error("SowFileTree accepted size \"lots\"")
	}
}

// TestFileTotalSizeAndDigest verifies size parsing and content digests.
func TestFileTotalSizeAndDigest(t *testing.T) {
	f := File{Chunks: []Chunk{{Pattern: 'A', Size: "1KiB"}, {Pattern: 'B', Size: "1KiB"}}}
	if got := f.TotalSize(); got != 2048 {
		t.Errorf("TotalSize() = %d, want 2048", got)
	}

	content := append(bytes.Repeat([]byte{'A'}, 1024), bytes.Repeat([]byte{'B'}, 1024)...)
	sum := sha256.Sum256(content)
	if got, want := f.Digest(), hex.EncodeToString(sum[:]); got != want {
		t.Errorf("Digest() = %s, want %s", got, want)
	}

	if (&File{}).Digest() != "" {
		t.Error("empty file has a digest")
	}
}

// TestDiffGroups verifies group comparison ignores order and reports both directions.
func TestDiffGroups(t *testing.T) {
	expected := [][]string{{"/b", "/a"}, {"/c", "/d"}}

	same := map[string][]string{"x": {"/a", "/b"}, "y": {"/d", "/c"}}
	if diffs := DiffGroups(expected, same); len(diffs) != 0 {
		t.Errorf("DiffGroups(same) = %v", diffs)
	}

	different := map[string][]string{"x": {"/a", "/b"}, "y": {"/c", "/e"}}
	diffs := DiffGroups(expected, different)
	want := []string{
		"expected group not reported: [/c /d]",
		"unexpected group reported: [/c /e]",
	}
	if !slices.Equal(diffs, want) {
		t.Errorf("DiffGroups(different) = %q, want %q", diffs, want)
	}
}

// TestDiffDigests verifies digest checking.
func TestDiffDigests(t *testing.T) {
	known := map[string]string{"/a": "aaaa", "/b": "aaaa"}

	if diffs := DiffDigests(known, map[string][]string{"aaaa": {"/a", "/b", "/unknown"}}); len(diffs) != 0 {
		t.Errorf("DiffDigests(match) = %v", diffs)
	}
	if diffs := DiffDigests(known, map[string][]string{"bbbb": {"/a", "/b"}}); len(diffs) != 2 {
		t.Errorf("DiffDigests(mismatch) = %v, want 2 diffs", diffs)
	}
}

// TestHarnessNew verifies harness paths and passing assertions.
func TestHarnessNew(t *testing.T) {
	spec := FileTree{Volumes: []Volume{
		{MountPoint: "/one", Files: []File{{Path: []string{"a.mp4"}, Chunks: []Chunk{{Pattern: 'S', Size: "8"}}}}},
		{MountPoint: "/two", Files: []File{{Path: []string{"b.mp4"}, Chunks: []Chunk{{Pattern: 'S', Size: "8"}}}}},
	}}
	h := New(t, spec)

	if want := []string{h.Path("/one"), h.Path("/two")}; !slices.Equal(h.Volumes(), want) {
		t.Errorf("Volumes() = %v, want %v", h.Volumes(), want)
	}
	if _, err := os.Stat(h.Path("/two/b.mp4")); err != nil {
		t.Errorf("file not created: %v", err)
	}

	digest := (&spec.Volumes[0].Files[0]).Digest()
	h.AssertGroups(map[string][]types.FileRecord{
		digest: {{Path: h.Path("/one/a.mp4")}, {Path: h.Path("/two/b.mp4")}},
	}, Groups{{"/two/b.mp4", "/one/a.mp4"}})
}
