// Package gate provides the cooperative pause/cancel primitive shared by the
// walker, hasher and worker pool.
//
// A Gate holds two channels:
//
//	resume  closed while the gate is open; replaced by a fresh channel on Pause
//	done    closed once on Cancel
//
// Wait checks done first without blocking, then blocks on resume. Paused
// callers therefore sleep in a channel receive rather than polling, and a
// cancel issued during a pause releases them immediately.
package gate

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCancelled is returned by Wait and Sleep once the gate has been cancelled.
var ErrCancelled = errors.New("scan cancelled")

// Gate coordinates pause, resume and cancel for one scan.
// A nil *Gate never pauses and is never cancelled.
type Gate struct {
	mu        sync.Mutex
	paused    bool
	cancelled bool
	resume    chan struct{}
	done      chan struct{}
}

// New creates an open gate.
func New() *Gate {
	resume := make(chan struct{})
	close(resume)
	return &Gate{resume: resume, done: make(chan struct{})}
}

// Pause closes the gate. Returns false if already paused or cancelled.
func (g *Gate) Pause() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused || g.cancelled {
		return false
	}
	g.paused = true
	g.resume = make(chan struct{})
	return true
}

// Resume reopens a paused gate, releasing every waiter.
// Returns false if the gate was not paused.
func (g *Gate) Resume() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return false
	}
	g.paused = false
	close(g.resume)
	return true
}

// Cancel marks the gate cancelled and releases any paused waiters.
// Returns false if it was already cancelled.
func (g *Gate) Cancel() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelled {
		return false
	}
	g.cancelled = true
	close(g.done)
	if g.paused {
		g.paused = false
		close(g.resume)
	}
	return true
}

// Paused reports whether the gate is currently closed.
func (g *Gate) Paused() bool {
	if g == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Cancelled reports whether Cancel has been called. Non-blocking.
func (g *Gate) Cancelled() bool {
	if g == nil {
		return false
	}
	select {
	case <-g.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed on cancel. Nil gates return nil (never ready).
func (g *Gate) Done() <-chan struct{} {
	if g == nil {
		return nil
	}
	return g.done
}

// Wait is the suspension point: it returns ErrCancelled if cancelled,
// blocks while paused, and returns ctx.Err() if ctx ends first.
func (g *Gate) Wait(ctx context.Context) error {
	if g == nil {
		return ctx.Err()
	}
	if g.Cancelled() {
		return ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	resume := g.resume
	g.mu.Unlock()

	select {
	case <-resume:
		if g.Cancelled() {
			return ErrCancelled
		}
		return nil
	case <-g.done:
		return ErrCancelled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sleep pauses the caller for d, returning early on cancel or ctx end.
func (g *Gate) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return g.Wait(ctx)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-g.Done():
		return ErrCancelled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stopped reports whether err means the scan was cancelled or its context ended.
func Stopped(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
