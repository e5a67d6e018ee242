// Package report writes duplicate groups to disk and summarizes them on
// the terminal.
//
// The result file maps each digest to the paths sharing it:
//
//	{
//	  "9f86d08…": [
//	    "/media/a.mp4",
//	    "/media/copy/a.mp4"
//	  ]
//	}
//
// Keys are sorted and paths within a group are sorted, so output is stable
// for a given set of files.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ivoronin/dupevid/internal/types"
)

// ErrUnknownFormat is returned for an unsupported output format.
var ErrUnknownFormat = errors.New("unknown output format")

// Format is a result file encoding.
type Format string

// Supported formats.
const (
	JSON Format = "json"
	YAML Format = "yaml"
)

// ParseFormat parses a format name. An empty name means JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	default:
		return "", fmt.Errorf("%w: %q (want json or yaml)", ErrUnknownFormat, s)
	}
}

// FormatForPath guesses a format from a file extension, defaulting to JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML
	default:
		return JSON
	}
}

// Digests maps each digest to its member paths.
type Digests map[string][]string

// FromGroups flattens groups into the on-disk shape.
func FromGroups(groups types.DuplicateGroups) Digests {
	out := make(Digests, groups.Len())
	for _, g := range groups.Items() {
		out[g.Digest] = g.Paths()
	}
	return out
}

// Write encodes groups to w.
func Write(w io.Writer, groups types.DuplicateGroups, format Format) error {
	digests := FromGroups(groups)
	switch format {
	case JSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(digests)
	case YAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(digests); err != nil {
			return err
		}
		return encoder.Close()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// WriteFile writes groups to path, replacing any existing file.
func WriteFile(path string, groups types.DuplicateGroups, format Format) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	if err := Write(f, groups, format); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Read decodes a result file.
func Read(r io.Reader, format Format) (Digests, error) {
	var out Digests
	switch format {
	case JSON:
		if err := json.NewDecoder(r).Decode(&out); err != nil {
			return nil, err
		}
	case YAML:
		if err := yaml.NewDecoder(r).Decode(&out); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if out == nil {
		out = Digests{}
	}
	return out, nil
}

// ReadFile decodes the result file at path.
func ReadFile(path string, format Format) (Digests, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Read(f, format)
}
