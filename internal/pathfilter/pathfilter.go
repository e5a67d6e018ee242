// Package pathfilter decides which directories are pruned from traversal.
//
// Two kinds of deny entries exist:
//
//   - System directories are absolute paths. A path is excluded when it equals
//     one of them or lies beneath it (matched on path-component boundaries, so
//     /procfs is not caught by /proc).
//   - Dotted names (.git, .cache, ...) match any single path component, so
//     /home/alice/.cache/thumbs is excluded wherever the .cache lives.
package pathfilter

import (
	"path/filepath"
	"slices"
	"strings"
)

// SystemDirs are absolute directories never worth scanning for media.
var SystemDirs = []string{
	"/proc", "/sys", "/dev", "/run", "/tmp",
	"/var/run", "/var/lock", "/var/tmp",
	"/boot", "/root", "/etc", "/usr",
	"/bin", "/sbin", "/lib", "/lib64",
	"/opt", "/snap", "/lost+found",
}

// DottedDirs are configuration and cache directory names.
var DottedDirs = []string{
	".git", ".github", ".config", ".local", ".cache",
	".docker", ".ssh", ".gnupg", ".aws", ".azure",
	".google", ".mozilla", ".thunderbird",
}

// Filter is an immutable deny-list. A nil *Filter excludes nothing.
type Filter struct {
	system []string
	dotted []string
}

// Default returns the built-in deny-list.
func Default() *Filter {
	return New(SystemDirs, DottedDirs)
}

// New creates a Filter from explicit lists.
// Entries starting with "/" are system dirs; anything else is a dotted name.
// A leading "/" before a dotted name (e.g. "/.git") is treated as the name.
func New(system, dotted []string) *Filter {
	f := &Filter{}
	for _, p := range slices.Concat(system, dotted) {
		f.add(p)
	}
	return f
}

// Parse builds a Filter from mixed entries, as read from configuration.
// Empty input yields the default deny-list.
func Parse(entries []string) *Filter {
	if len(entries) == 0 {
		return Default()
	}
	return New(entries, nil)
}

func (f *Filter) add(entry string) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return
	}
	if trimmed := strings.TrimPrefix(entry, "/"); strings.HasPrefix(trimmed, ".") && !strings.Contains(trimmed, "/") {
		f.dotted = append(f.dotted, trimmed)
		return
	}
	if !filepath.IsAbs(entry) {
		f.dotted = append(f.dotted, entry)
		return
	}
	f.system = append(f.system, filepath.Clean(entry))
}

// With returns a copy of f extended with entries, classified as in New.
// The receiver is not modified.
func (f *Filter) With(entries ...string) *Filter {
	out := &Filter{}
	if f != nil {
		out.system = slices.Clone(f.system)
		out.dotted = slices.Clone(f.dotted)
	}
	for _, e := range entries {
		out.add(e)
	}
	return out
}

// IsExcluded reports whether path is equal to or a descendant of a deny entry.
func (f *Filter) IsExcluded(path string) bool {
	if f == nil {
		return false
	}
	path = normalize(path)
	for _, dir := range f.system {
		if under(path, dir) {
			return true
		}
	}
	if len(f.dotted) == 0 {
		return false
	}
	for part := range strings.SplitSeq(path, string(filepath.Separator)) {
		if slices.Contains(f.dotted, part) {
			return true
		}
	}
	return false
}

// Within returns a copy of the filter scoped to a scan root: system entries
// that are the root itself or one of its ancestors are dropped, so an
// explicitly requested root is never pruned as a whole. Dotted names that
// appear in the root path are dropped for the same reason.
func (f *Filter) Within(root string) *Filter {
	if f == nil {
		return nil
	}
	root = normalize(root)
	scoped := &Filter{}
	for _, dir := range f.system {
		if !under(root, dir) {
			scoped.system = append(scoped.system, dir)
		}
	}
	parts := strings.Split(root, string(filepath.Separator))
	for _, name := range f.dotted {
		if !slices.Contains(parts, name) {
			scoped.dotted = append(scoped.dotted, name)
		}
	}
	return scoped
}

// normalize converts path to a clean absolute form.
func normalize(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// under reports whether path equals dir or lies beneath it.
func under(path, dir string) bool {
	if path == dir || dir == "/" {
		return true
	}
	return strings.HasPrefix(path, dir) && path[len(dir)] == filepath.Separator
}
