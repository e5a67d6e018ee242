// Package progress renders scan snapshots as terminal progress bars.
//
// A scan shows two bars in sequence, one per stage:
//
//	Enumerating  ⠋ 1,204 files                      (spinner, total unknown)
//	Hashing      [=====>        ] 312/1,204 files, 4.1 GiB, 3 groups
//
// Bars write to stderr so stdout stays clean for results.
package progress

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"

	"github.com/ivoronin/dupevid/internal/scan"
)

const updateInterval = 50 * time.Millisecond

// Bar wraps progressbar with enabled/disabled handling.
// All methods are no-ops when disabled.
type Bar struct {
	bar *progressbar.ProgressBar
	out io.Writer
}

// New creates a progress bar writing to stderr.
// If enabled=false, returns a Bar where all methods are no-ops.
// Use total=-1 for spinner mode, or total>=0 for determinate progress.
func New(enabled bool, total int64) *Bar {
	return newBar(enabled, total, os.Stderr)
}

func newBar(enabled bool, total int64, out io.Writer) *Bar {
	if !enabled {
		return &Bar{}
	}

	opts := []progressbar.Option{
		progressbar.OptionSetWriter(out),
		progressbar.OptionThrottle(updateInterval),
		progressbar.OptionClearOnFinish(),
	}

	if total < 0 {
		// Spinner mode
		opts = append(opts,
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetElapsedTime(false),
		)
		return &Bar{bar: progressbar.NewOptions(-1, opts...), out: out}
	}

	// Progress bar mode
	opts = append(opts, progressbar.OptionSetWidth(40))
	return &Bar{bar: progressbar.NewOptions64(total, opts...), out: out}
}

// Set sets the progress bar to a specific value.
func (b *Bar) Set(n int64) {
	if b.bar != nil {
		_ = b.bar.Set64(n)
	}
}

// Describe updates the progress bar description.
func (b *Bar) Describe(s fmt.Stringer) {
	if b.bar != nil {
		b.bar.Describe(s.String())
	}
}

// Finish completes the progress bar and prints a final message.
func (b *Bar) Finish(s fmt.Stringer) {
	if b.bar != nil {
		_ = b.bar.Finish()
		_, _ = fmt.Fprintln(b.out, "✔ "+s.String())
	}
}

// enumerated describes stage one.
type enumerated scan.State

func (s enumerated) String() string {
	return fmt.Sprintf("Enumerating: %s video files", humanize.Comma(s.TotalFiles))
}

// hashed describes stage two.
type hashed scan.State

func (s hashed) String() string {
	return fmt.Sprintf("Hashing: %s/%s files, %s, %d groups",
		humanize.Comma(s.ProcessedFiles), humanize.Comma(s.TotalFiles),
		humanize.IBytes(uint64(max(0, s.BytesHashed))), len(s.DuplicateGroups))
}

// Follow renders events until the channel closes or a terminal snapshot
// arrives, and returns the last snapshot seen.
func Follow(enabled bool, events <-chan scan.State) scan.State {
	return follow(events, func(total int64) *Bar { return New(enabled, total) })
}

func follow(events <-chan scan.State, newBar func(total int64) *Bar) scan.State {
	var last scan.State
	var enumBar, hashBar *Bar

	for s := range events {
		last = s
		if s.Phase == scan.Idle {
			continue
		}

		if !s.EnumerationDone {
			if enumBar == nil {
				enumBar = newBar(-1)
			}
			enumBar.Describe(enumerated(s))
			enumBar.Set(s.TotalFiles)
		} else {
			if enumBar != nil {
				enumBar.Finish(enumerated(s))
				enumBar = nil
			}
			if hashBar == nil {
				hashBar = newBar(s.TotalFiles)
			}
			hashBar.Describe(hashed(s))
			hashBar.Set(s.ProcessedFiles)
		}

		if s.Phase.Terminal() {
			break
		}
	}

	if enumBar != nil {
		enumBar.Finish(enumerated(last))
	}
	if hashBar != nil {
		hashBar.Finish(hashed(last))
	}
	return last
}
