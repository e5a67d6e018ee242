package gate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// TestWaitOpen tests that an open gate never blocks.
func TestWaitOpen(t *testing.T) {
	g := New()
	if err := g.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() on open gate = %v, want nil", err)
	}
}

// TestNilGate tests nil gate behavior.
func TestNilGate(t *testing.T) {
	var g *Gate
	if err := g.Wait(context.Background()); err != nil {
		t.Errorf("Wait() on nil gate = %v", err)
	}
	if g.Cancelled() || g.Paused() {
		t.Error("nil gate should be neither cancelled nor paused")
	}
	if err := g.Sleep(context.Background(), time.Millisecond); err != nil {
		t.Errorf("Sleep() on nil gate = %v", err)
	}
}

// TestPauseBlocksUntilResume tests the blocking wait.
func TestPauseBlocksUntilResume(t *testing.T) {
	g := New()
	if !g.Pause() {
		t.Fatal("Pause() = false on open gate")
	}
	if g.Pause() {
		t.Error("second Pause() should be rejected")
	}

	released := make(chan error, 1)
	go func() { released <- g.Wait(context.Background()) }()

	select {
	case <-released:
		t.Fatal("Wait() returned while paused")
	case <-time.After(50 * time.Millisecond):
	}

	if !g.Resume() {
		t.Fatal("Resume() = false on paused gate")
	}
	select {
	case err := <-released:
		if err != nil {
			t.Errorf("Wait() after resume = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait() not released by Resume()")
	}

	if g.Resume() {
		t.Error("Resume() on open gate should be rejected")
	}
}

// TestCancelReleasesPausedWaiters tests cancellation priority over pause.
func TestCancelReleasesPausedWaiters(t *testing.T) {
	g := New()
	g.Pause()

	const waiters = 8
	var wg sync.WaitGroup
	errs := make(chan error, waiters)
	for range waiters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- g.Wait(context.Background())
		}()
	}

	time.Sleep(20 * time.Millisecond)
	if !g.Cancel() {
		t.Fatal("Cancel() = false")
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, ErrCancelled) {
			t.Errorf("Wait() = %v, want ErrCancelled", err)
		}
	}
	if g.Paused() {
		t.Error("cancelled gate should not report paused")
	}
	if g.Cancel() {
		t.Error("second Cancel() should return false")
	}
	if g.Pause() {
		t.Error("Pause() after cancel should be rejected")
	}
}

// TestWaitChecksCancelFirst tests that an open but cancelled gate reports cancel.
func TestWaitChecksCancelFirst(t *testing.T) {
	g := New()
	g.Cancel()
	if err := g.Wait(context.Background()); !errors.Is(err, ErrCancelled) {
		t.Errorf("Wait() = %v, want ErrCancelled", err)
	}
}

// TestWaitContext tests context cancellation while paused.
func TestWaitContext(t *testing.T) {
	g := New()
	g.Pause()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := g.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() = %v, want DeadlineExceeded", err)
	}
}

// TestSleep tests timed and interrupted sleeps.
func TestSleep(t *testing.T) {
	g := New()

	start := time.Now()
	if err := g.Sleep(context.Background(), 30*time.Millisecond); err != nil {
		t.Fatalf("Sleep() = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("Sleep() returned after %v, want >= 30ms", elapsed)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		g.Cancel()
	}()
	start = time.Now()
	if err := g.Sleep(context.Background(), 5*time.Second); !errors.Is(err, ErrCancelled) {
		t.Errorf("Sleep() = %v, want ErrCancelled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep() not interrupted by Cancel()")
	}
}

// TestStopped tests error classification.
func TestStopped(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrCancelled, true},
		{context.Canceled, true},
		{context.DeadlineExceeded, true},
		{errors.New("permission denied"), false},
	}
	for _, tt := range tests {
		if got := Stopped(tt.err); got != tt.want {
			t.Errorf("Stopped(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
