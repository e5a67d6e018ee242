package scan

import (
	"maps"
	"math"
	"slices"
	"time"

	"github.com/ivoronin/dupevid/internal/types"
)

// State is a point-in-time snapshot of the scan record.
//
// Snapshots handed to subscribers share DuplicateGroups with the
// controller; the map and its slices are replaced, never modified, so they
// are safe to read but must not be written. Controller.Snapshot returns a
// private deep copy.
type State struct {
	Phase               Phase                         `json:"phase"`
	CurrentFile         string                        `json:"current_file"`
	TotalFiles          int64                         `json:"total_files"`
	ProcessedFiles      int64                         `json:"processed_files"`
	SkippedFiles        int64                         `json:"skipped_files"`
	BytesHashed         int64                         `json:"bytes_hashed"`
	EnumerationDone     bool                          `json:"enumeration_done"`
	StartedAt           time.Time                     `json:"started_at"`
	PausedAt            time.Time                     `json:"paused_at"`
	FinishedAt          time.Time                     `json:"finished_at"`
	TotalPausedDuration time.Duration                 `json:"total_paused_duration"`
	DuplicateGroups     map[string][]types.FileRecord `json:"duplicate_groups"`
	CancelRequested     bool                          `json:"cancel_requested"`
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	if s.DuplicateGroups != nil {
		out.DuplicateGroups = make(map[string][]types.FileRecord, len(s.DuplicateGroups))
		for digest, files := range s.DuplicateGroups {
			out.DuplicateGroups[digest] = slices.Clone(files)
		}
	}
	return out
}

// Elapsed returns wall-clock scan time excluding pauses, measured up to
// FinishedAt or now.
func (s State) Elapsed(now time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	end := now
	if !s.FinishedAt.IsZero() {
		end = s.FinishedAt
	}
	paused := s.TotalPausedDuration
	if s.Phase == Paused && !s.PausedAt.IsZero() {
		paused += end.Sub(s.PausedAt)
	}
	return max(0, end.Sub(s.StartedAt)-paused)
}

// Progress returns processed/total as a percentage rounded to 0.1.
func (s State) Progress() float64 {
	if s.TotalFiles == 0 {
		if s.Phase == Completed {
			return 100
		}
		return 0
	}
	pct := float64(s.ProcessedFiles) / float64(s.TotalFiles) * 100
	return math.Round(pct*10) / 10
}

// Groups returns the duplicate groups sorted by digest.
func (s State) Groups() types.DuplicateGroups {
	groups := make([]types.DuplicateGroup, 0, len(s.DuplicateGroups))
	for _, digest := range slices.Sorted(maps.Keys(s.DuplicateGroups)) {
		groups = append(groups, types.NewDuplicateGroup(digest, s.DuplicateGroups[digest]))
	}
	return types.NewDuplicateGroups(groups)
}
