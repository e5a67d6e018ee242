package report

import (
	"bytes"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ivoronin/dupevid/internal/types"
)

func sampleGroups() types.DuplicateGroups {
	return types.NewDuplicateGroups([]types.DuplicateGroup{
		types.NewDuplicateGroup("bbbb", []types.FileRecord{
			{Path: "/v/z.mp4", Size: 2048},
			{Path: "/v/a.mp4", Size: 2048},
		}),
		types.NewDuplicateGroup("aaaa", []types.FileRecord{
			{Path: "/m/1.mkv", Size: 10},
			{Path: "/m/2.mkv", Size: 10},
			{Path: "/m/3.mkv", Size: 10},
		}),
	})
}

// =============================================================================
// Section 1: Result File
// =============================================================================

// TestWriteJSON tests the exact JSON layout.
func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleGroups(), JSON); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	want := `{
  "aaaa": [
    "/m/1.mkv",
    "/m/2.mkv",
    "/m/3.mkv"
  ],
  "bbbb": [
    "/v/a.mp4",
    "/v/z.mp4"
  ]
}
`
	if buf.String() != want {
		t.Errorf("Write() =\n%s\nwant\n%s", buf.String(), want)
	}
}

// TestWriteEmpty tests that no groups produce an empty object.
func TestWriteEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, types.NewDuplicateGroups(nil), JSON); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(buf.String()); got != "{}" {
		t.Errorf("Write() = %q, want {}", got)
	}
}

// TestRoundTrip tests that both formats decode to the written mapping.
func TestRoundTrip(t *testing.T) {
	want := FromGroups(sampleGroups())
	for _, format := range []Format{JSON, YAML} {
		t.Run(string(format), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out."+string(format))
			if err := WriteFile(path, sampleGroups(), format); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}
			got, err := ReadFile(path, format)
			if err != nil {
				t.Fatalf("ReadFile() error = %v", err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("round trip = %v, want %v", got, want)
			}
		})
	}
}

// TestWriteFileBadPath tests that an unwritable destination is reported.
func TestWriteFileBadPath(t *testing.T) {
	err := WriteFile(filepath.Join(t.TempDir(), "missing", "out.json"), sampleGroups(), JSON)
	if err == nil {
		t.Error("WriteFile() into missing directory succeeded")
	}
}

// TestUnknownFormat tests format validation.
func TestUnknownFormat(t *testing.T) {
	if err := Write(&bytes.Buffer{}, sampleGroups(), Format("xml")); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Write(xml) error = %v, want ErrUnknownFormat", err)
	}
	if _, err := Read(strings.NewReader("{}"), Format("xml")); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Read(xml) error = %v, want ErrUnknownFormat", err)
	}
}

// TestParseFormat tests format names.
func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"", JSON, false},
		{"json", JSON, false},
		{"JSON", JSON, false},
		{"yaml", YAML, false},
		{"yml", YAML, false},
		{"csv", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestFormatForPath tests extension detection.
func TestFormatForPath(t *testing.T) {
	if FormatForPath("dups.YML") != YAML || FormatForPath("dups.yaml") != YAML {
		t.Error("yaml extensions not detected")
	}
	if FormatForPath("duplicates.json") != JSON || FormatForPath("noext") != JSON {
		t.Error("default format is not JSON")
	}
}

// =============================================================================
// Section 2: Terminal Summary
// =============================================================================

// TestPrinterSummary tests the summary text.
func TestPrinterSummary(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.Missing("/nope")
	p.Discovered(1234)
	p.Summary(sampleGroups(), "duplicates.json")

	out := buf.String()
	for _, want := range []string{
		"Directory /nope does not exist\n",
		"Found 1,234 video files to analyze\n",
		"Found 2 groups of duplicate files\n",
		"5 duplicate files in 2 groups (2.0 KiB reclaimable)\n",
		"Results saved to duplicates.json\n",
		"Duplicate files with hash aaaa:\n  - /m/1.mkv\n  - /m/2.mkv\n  - /m/3.mkv\n",
		"Duplicate files with hash bbbb:\n  - /v/a.mp4\n  - /v/z.mp4\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "hash aaaa") > strings.Index(out, "hash bbbb") {
		t.Error("groups not printed in digest order")
	}
}

// TestPrinterNoGroups tests the summary without duplicates.
func TestPrinterNoGroups(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).Summary(types.NewDuplicateGroups(nil), "")

	if got := buf.String(); got != "Found 0 groups of duplicate files\n" {
		t.Errorf("output = %q", got)
	}
}
