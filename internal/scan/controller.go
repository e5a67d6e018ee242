// Package scan owns the scan lifecycle: one controller, one authoritative
// state record, and a push channel of snapshots for observers.
//
// # Architecture Overview
//
// A scan runs in two stages over every valid root:
//
//	Start(opts)
//	    │
//	    ├──► ValidateRoots          missing roots skipped, none left → Failed
//	    │
//	    ├──► Stage 1: enumerate     walker.Walk per root, TotalFiles grows
//	    │                           EnumerationDone = true at the end
//	    │
//	    ├──► Stage 2: hash          pool.Run over the collected records
//	    │        └──► per file:     hasher.Hash → grouper.Add → ProcessedFiles++
//	    │        └──► per batch:    grouper.Drain → merge into DuplicateGroups
//	    │
//	    └──► Completed | Cancelled | Failed
//
// # Concurrency Model
//
// Control operations (Start, Pause, Resume, Cancel) and progress updates
// mutate the record under one mutex and publish a snapshot before the lock
// is released, so observers see mutations in order. Readers never take the
// lock: Snapshot loads an atomic pointer.
//
// DuplicateGroups is copy-on-write. Each merge builds a new map, so
// published snapshots share it without copying.
//
// Pause and cancel travel to the workers through a gate.Gate checked
// between files and between chunks; pausing stalls work within one chunk.
package scan

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ivoronin/dupevid/internal/broadcaster"
	"github.com/ivoronin/dupevid/internal/cache"
	"github.com/ivoronin/dupevid/internal/gate"
	"github.com/ivoronin/dupevid/internal/grouper"
	"github.com/ivoronin/dupevid/internal/hasher"
	"github.com/ivoronin/dupevid/internal/logging"
	"github.com/ivoronin/dupevid/internal/pool"
	"github.com/ivoronin/dupevid/internal/throttle"
	"github.com/ivoronin/dupevid/internal/types"
	"github.com/ivoronin/dupevid/internal/walker"
)

var logger = logging.Get("scan")

// ControllerOptions configures a Controller for its whole lifetime.
type ControllerOptions struct {
	Sampler         throttle.Sampler // nil means throttle.Host{}
	DisableThrottle bool             // Hash at full speed (standalone mode)
	ThrottleDelay   time.Duration
	MemoryHighWater float64
	ReliefPause     time.Duration
	Cache           *cache.Cache
	OnError         func(error) // Per-file errors; default logs a warning
	Buffer          int         // Per-subscriber buffer
}

// Controller runs at most one scan at a time.
type Controller struct {
	// Config (immutable, set by NewController)
	opts    ControllerOptions
	sampler throttle.Sampler

	// Runtime
	mu          sync.Mutex
	state       State
	gate        *gate.Gate
	cancelRun   context.CancelFunc
	done        chan struct{}
	bytesHashed atomic.Int64
	snapshot    atomic.Pointer[State]
	bus         *broadcaster.Broadcaster[State]
}

// NewController creates an idle Controller.
func NewController(opts ControllerOptions) *Controller {
	if opts.ThrottleDelay <= 0 {
		opts.ThrottleDelay = throttle.DefaultDelay
	}
	if opts.Buffer <= 0 {
		opts.Buffer = broadcaster.DefaultBuffer
	}
	c := &Controller{
		opts:    opts,
		sampler: opts.Sampler,
		bus:     broadcaster.New[State](opts.Buffer),
	}
	if c.sampler == nil {
		c.sampler = throttle.Host{}
	}
	c.snapshot.Store(&State{})
	return c
}

// Start begins a scan. It returns false when a scan is already in flight.
func (c *Controller) Start(opts Options) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Phase.Active() {
		logger.Warn("start rejected, scan already in progress", "phase", c.state.Phase)
		return false
	}

	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c.gate = gate.New()
	c.cancelRun = cancel
	c.done = make(chan struct{})
	c.bytesHashed.Store(0)
	c.state = State{
		Phase:           Scanning,
		StartedAt:       time.Now(),
		DuplicateGroups: map[string][]types.FileRecord{},
	}
	c.publishLocked()

	logger.Info("scan started", "roots", opts.Roots, "workers", opts.Workers,
		"batch_size", opts.BatchSize, "cpu_ceiling", opts.CPUCeilingPercent)
	go c.run(ctx, opts, c.gate, c.done)
	return true
}

// Pause suspends a running scan. It returns false unless the scan is Scanning.
func (c *Controller) Pause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Phase != Scanning || c.state.CancelRequested {
		logger.Warn("pause rejected", "phase", c.state.Phase)
		return false
	}
	c.gate.Pause()
	c.state.Phase = Paused
	c.state.PausedAt = time.Now()
	c.publishLocked()
	logger.Info("scan paused", "file", c.state.CurrentFile)
	return true
}

// Resume continues a paused scan. It returns false unless the scan is Paused.
func (c *Controller) Resume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Phase != Paused {
		logger.Warn("resume rejected", "phase", c.state.Phase)
		return false
	}
	c.resumeLocked()
	c.publishLocked()
	logger.Info("scan resumed", "paused_total", c.state.TotalPausedDuration)
	return true
}

// resumeLocked folds the current pause into TotalPausedDuration and opens the gate.
func (c *Controller) resumeLocked() {
	c.state.TotalPausedDuration += time.Since(c.state.PausedAt)
	c.state.PausedAt = time.Time{}
	c.state.Phase = Scanning
	c.gate.Resume()
}

// Cancel asks a running or paused scan to stop. A paused scan is resumed
// first so its workers can observe the cancellation.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.Phase.Active() || c.state.CancelRequested {
		logger.Warn("cancel rejected", "phase", c.state.Phase)
		return false
	}
	if c.state.Phase == Paused {
		c.resumeLocked()
	}
	c.state.CancelRequested = true
	c.gate.Cancel()
	c.publishLocked()
	logger.Info("scan cancel requested")
	return true
}

// Snapshot returns a private deep copy of the current state.
//
// BytesHashed is read live, so between publications it may run ahead of
// the other fields and of the last snapshot pushed to subscribers. It is
// folded into every publication, so the terminal snapshot agrees with
// what subscribers received.
func (c *Controller) Snapshot() State {
	s := *c.snapshot.Load()
	s.BytesHashed = c.bytesHashed.Load()
	return s.Clone()
}

// Subscribe registers an observer. The current snapshot is queued first so
// a new observer never waits for the next mutation. Returns nil after Close.
func (c *Controller) Subscribe() *broadcaster.Subscriber[State] {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub := c.bus.Subscribe()
	if sub != nil {
		sub.Events <- *c.snapshot.Load()
	}
	return sub
}

// Unsubscribe removes an observer and closes its channel.
func (c *Controller) Unsubscribe(id string) {
	c.bus.Unsubscribe(id)
}

// Wait blocks until the current scan (if any) ends or ctx is done, and
// returns the latest snapshot.
func (c *Controller) Wait(ctx context.Context) (State, error) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done == nil {
		return c.Snapshot(), nil
	}
	select {
	case <-done:
		return c.Snapshot(), nil
	case <-ctx.Done():
		return c.Snapshot(), ctx.Err()
	}
}

// Close cancels any scan in flight, waits for it to stop and closes all
// subscriber channels.
func (c *Controller) Close() {
	c.mu.Lock()
	active := c.state.Phase.Active()
	cancelRun, done := c.cancelRun, c.done
	c.mu.Unlock()

	if active {
		c.Cancel()
	}
	if cancelRun != nil {
		cancelRun()
	}
	if done != nil {
		<-done
	}
	c.bus.Close()
}

// publishLocked stores and broadcasts the current record. Caller holds mu.
func (c *Controller) publishLocked() {
	c.state.BytesHashed = c.bytesHashed.Load()
	snap := c.state
	c.snapshot.Store(&snap)
	c.bus.Notify(snap)
}

// update applies fn to the record and publishes the result.
func (c *Controller) update(fn func(s *State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.state)
	c.publishLocked()
}

// mergeGroups replaces the published group map with one that includes changed.
func (c *Controller) mergeGroups(changed []types.DuplicateGroup) {
	if len(changed) == 0 {
		return
	}
	c.update(func(s *State) {
		next := maps.Clone(s.DuplicateGroups)
		if next == nil {
			next = make(map[string][]types.FileRecord, len(changed))
		}
		for _, g := range changed {
			next[g.Digest] = g.Files.Items()
		}
		s.DuplicateGroups = next
	})
}

// finish moves the record to a terminal phase.
func (c *Controller) finish(phase Phase, message string) {
	c.update(func(s *State) {
		if s.Phase == Paused {
			s.TotalPausedDuration += time.Since(s.PausedAt)
			s.PausedAt = time.Time{}
		}
		s.Phase = phase
		s.FinishedAt = time.Now()
		switch {
		case message != "":
			s.CurrentFile = message
		case phase == Completed:
			s.CurrentFile = ""
		}
	})

	snap := c.Snapshot()
	logger.Info("scan finished", "phase", phase, "files", snap.ProcessedFiles,
		"skipped", snap.SkippedFiles, "groups", len(snap.DuplicateGroups),
		"elapsed", snap.Elapsed(time.Now()).Round(time.Millisecond))
}

// reportError forwards a per-file error.
func (c *Controller) reportError(err error) {
	if c.opts.OnError != nil {
		c.opts.OnError(err)
		return
	}
	logger.Warn("skipping file", "err", err)
}

// run executes one scan. Any panic escaping the stages marks it Failed.
func (c *Controller) run(ctx context.Context, opts Options, g *gate.Gate, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("scan panicked", "panic", r)
			c.finish(Failed, fmt.Sprintf("scan failed: %v", r))
		}
	}()

	roots, err := ValidateRoots(opts.Roots, func(root string, err error) {
		logger.Warn("directory skipped", "root", root, "err", err)
	})
	if err != nil {
		logger.Error("scan cannot start", "err", err)
		c.finish(Failed, err.Error())
		return
	}

	records := c.enumerate(ctx, roots, opts, g)
	if err := c.hash(ctx, records, opts, g); err != nil && !gate.Stopped(err) {
		c.finish(Failed, err.Error())
		return
	}

	// A scan paused after its last file settles only once resumed or cancelled
	_ = g.Wait(ctx)
	if g.Cancelled() || ctx.Err() != nil {
		c.finish(Cancelled, "")
		return
	}
	c.finish(Completed, "")
}

// enumerate walks every root and collects matching files.
func (c *Controller) enumerate(ctx context.Context, roots []string, opts Options, g *gate.Gate) []types.FileRecord {
	var records []types.FileRecord
	for _, root := range roots {
		wopts := walker.Options{
			Extensions: opts.Extensions,
			Filter:     opts.Filter.Within(root),
			Gate:       g,
			OnError:    c.reportError,
		}
		for rec := range walker.Walk(ctx, root, wopts) {
			records = append(records, rec)
			c.update(func(s *State) {
				s.TotalFiles++
				s.CurrentFile = rec.Path
			})
		}
		if g.Cancelled() || ctx.Err() != nil {
			break
		}
	}

	c.update(func(s *State) { s.EnumerationDone = true })
	logger.Debug("enumeration done", "files", len(records))
	return records
}

// hash digests every record through the worker pool and merges groups
// after each batch.
func (c *Controller) hash(ctx context.Context, records []types.FileRecord, opts Options, g *gate.Gate) error {
	var th *throttle.Throttle
	if !c.opts.DisableThrottle {
		th = throttle.New(opts.CPUCeilingPercent, c.opts.ThrottleDelay, throttle.WithSampler(c.sampler))
	}

	h := hasher.New(hasher.Options{
		Gate:     g,
		Throttle: th,
		Cache:    c.opts.Cache,
		OnChunk:  func(n int) { c.bytesHashed.Add(int64(n)) },
	})
	grp := grouper.New()

	p := pool.New(pool.Options{
		Workers:         opts.Workers,
		BatchSize:       opts.BatchSize,
		MemoryHighWater: c.opts.MemoryHighWater,
		ReliefPause:     c.opts.ReliefPause,
		Memory:          c.sampler,
		Gate:            g,
		OnBatch:         func(int, int) { c.mergeGroups(grp.Drain()) },
	})

	err := p.Run(ctx, slices.Values(records), func(ctx context.Context, rec types.FileRecord) {
		c.update(func(s *State) { s.CurrentFile = rec.Path })

		res, err := h.Hash(ctx, rec)
		if gate.Stopped(err) {
			return
		}
		if err != nil {
			c.reportError(err)
		}
		if grp.Add(res.Digest, rec) {
			logger.Debug("duplicate found", "digest", res.Digest, "path", rec.Path)
		}
		c.update(func(s *State) {
			s.ProcessedFiles++
			if res.Empty() {
				s.SkippedFiles++
			}
		})
	})

	c.mergeGroups(grp.Drain())
	if n := p.Panics(); n > 0 {
		logger.Warn("recovered worker panics", "count", n)
	}
	if n := p.ReliefPauses(); n > 0 {
		logger.Info("paused for memory relief", "count", n)
	}
	logger.Debug("hashing done", "pool", p.String(), "digested", grp.Files(),
		"groups", grp.Duplicates().Len(), "cache", c.opts.Cache.String())
	return err
}
