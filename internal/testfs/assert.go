package testfs

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// -----------------------------------------------------------------------------
// Comparison Functions
// -----------------------------------------------------------------------------

// DiffGroups compares reported groups (digest -> paths) with expected path
// groups and returns one message per mismatch. Order is ignored.
func DiffGroups(expected [][]string, actual map[string][]string) []string {
	want := make(map[string][]string, len(expected))
	for _, g := range expected {
		want[groupKey(g)] = g
	}
	got := make(map[string][]string, len(actual))
	for _, g := range actual {
		got[groupKey(g)] = g
	}

	var diffs []string
	for _, key := range slices.Sorted(maps.Keys(want)) {
		if _, ok := got[key]; !ok {
			diffs = append(diffs, fmt.Sprintf("expected group not reported: %v", sorted(want[key])))
		}
	}
	for _, key := range slices.Sorted(maps.Keys(got)) {
		if _, ok := want[key]; !ok {
			diffs = append(diffs, fmt.Sprintf("unexpected group reported: %v", sorted(got[key])))
		}
	}
	return diffs
}

// DiffDigests checks that each reported digest matches the known content
// digest of every member. Paths without a known digest are skipped.
func DiffDigests(known map[string]string, actual map[string][]string) []string {
	var diffs []string
	for _, digest := range slices.Sorted(maps.Keys(actual)) {
		for _, p := range actual[digest] {
			want, ok := known[p]
			if ok && want != digest {
				diffs = append(diffs, fmt.Sprintf("%s: reported digest %.12s, content digest %.12s", p, digest, want))
			}
		}
	}
	return diffs
}

func groupKey(paths []string) string {
	return strings.Join(sorted(paths), "\x00")
}

func sorted(paths []string) []string {
	out := slices.Clone(paths)
	slices.Sort(out)
	return out
}
