// Package pool runs a per-file function over a sequence of files in
// bounded, batched concurrency.
//
// # Concurrency Model
//
// Files are pulled from the input sequence into batches. Each batch is a
// structured scope: up to Workers goroutines run at once (semaphore), and
// the batch is joined (WaitGroup) before the next one starts. Batches are
// therefore processed in discovery order while files inside a batch finish
// in any order.
//
//	Run()
//	    │
//	    ├──► fill batch (BatchSize records from seq)
//	    │
//	    ├──► runBatch:
//	    │        ├──► gate.Wait()          [cancel → stop, pause → block]
//	    │        ├──► sem.Acquire()        [bounded in-flight files]
//	    │        ├──► go fn(rec)           [panics recovered and logged]
//	    │        └──► wg.Wait()            [join whole batch]
//	    │
//	    ├──► OnBatch(index, size)
//	    │
//	    └──► memory above high-water? → FreeOSMemory + relief pause
//
// # Why This Design?
//
//   - Batch joins bound peak open file handles and result-map growth
//   - Per-file failures stay inside fn; one bad file never aborts a batch
//   - Relief pauses give the host a chance to reclaim memory between batches
package pool

import (
	"context"
	"fmt"
	"iter"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ivoronin/dupevid/internal/gate"
	"github.com/ivoronin/dupevid/internal/logging"
	"github.com/ivoronin/dupevid/internal/types"
)

// Defaults.
const (
	DefaultWorkers         = 4
	DefaultBatchSize       = 100
	DefaultMemoryHighWater = 80.0
	DefaultReliefPause     = 2 * time.Second
)

var logger = logging.Get("pool")

// MemorySampler reports the share of host memory in use.
type MemorySampler interface {
	MemoryPercent(ctx context.Context) (float64, error)
}

// Options configures a Pool. Zero values fall back to defaults;
// a nil Memory disables relief pauses.
type Options struct {
	Workers         int
	BatchSize       int
	MemoryHighWater float64
	ReliefPause     time.Duration
	Memory          MemorySampler
	Gate            *gate.Gate
	OnBatch         func(index, size int)
}

// Pool executes work over files batch by batch.
//
// A Pool may be reused for several Run calls but not concurrently.
type Pool struct {
	// Config (immutable, set by New)
	workers     int
	batchSize   int
	highWater   float64
	reliefPause time.Duration
	memory      MemorySampler
	gate        *gate.Gate
	onBatch     func(index, size int)

	// Runtime
	stats stats
}

// stats tracks pool activity using atomic counters.
type stats struct {
	batches      atomic.Int64
	dispatched   atomic.Int64
	panics       atomic.Int64
	reliefPauses atomic.Int64
}

func (s *stats) String() string {
	return fmt.Sprintf("%d files in %d batches, %d relief pauses, %d panics",
		s.dispatched.Load(), s.batches.Load(), s.reliefPauses.Load(), s.panics.Load())
}

// New creates a Pool.
func New(opts Options) *Pool {
	p := &Pool{
		workers:     opts.Workers,
		batchSize:   opts.BatchSize,
		highWater:   opts.MemoryHighWater,
		reliefPause: opts.ReliefPause,
		memory:      opts.Memory,
		gate:        opts.Gate,
		onBatch:     opts.OnBatch,
	}
	if p.workers <= 0 {
		p.workers = DefaultWorkers
	}
	if p.batchSize <= 0 {
		p.batchSize = DefaultBatchSize
	}
	if p.highWater <= 0 {
		p.highWater = DefaultMemoryHighWater
	}
	if p.reliefPause <= 0 {
		p.reliefPause = DefaultReliefPause
	}
	return p
}

// Run applies fn to every record in seq.
//
// Returns nil when the sequence is exhausted, or gate.ErrCancelled /
// ctx.Err() when the run stopped early. Files of a partially dispatched
// batch that were never started are simply not processed.
func (p *Pool) Run(ctx context.Context, seq iter.Seq[types.FileRecord], fn func(context.Context, types.FileRecord)) error {
	batch := make([]types.FileRecord, 0, p.batchSize)
	index := 0

	for rec := range seq {
		batch = append(batch, rec)
		if len(batch) < p.batchSize {
			continue
		}
		if err := p.runBatch(ctx, index, batch, fn); err != nil {
			return err
		}
		index++
		batch = batch[:0]
	}

	if len(batch) > 0 {
		return p.runBatch(ctx, index, batch, fn)
	}
	return nil
}

// runBatch dispatches one batch and joins it, then checks memory pressure.
func (p *Pool) runBatch(ctx context.Context, index int, batch []types.FileRecord, fn func(context.Context, types.FileRecord)) error {
	sem := types.NewSemaphore(p.workers)
	var wg sync.WaitGroup
	var stopErr error

	for _, rec := range batch {
		if err := p.gate.Wait(ctx); err != nil {
			stopErr = err
			break
		}
		sem.Acquire()
		wg.Add(1)
		p.stats.dispatched.Add(1)
		go func(rec types.FileRecord) {
			defer wg.Done()
			defer sem.Release()
			defer p.recoverPanic(rec)
			fn(ctx, rec)
		}(rec)
	}
	wg.Wait()

	p.stats.batches.Add(1)
	if p.onBatch != nil {
		p.onBatch(index, len(batch))
	}
	logger.Debug("batch complete", "index", index, "size", len(batch), "stats", p.stats.String())

	if stopErr != nil {
		return stopErr
	}
	return p.relieveMemory(ctx)
}

// recoverPanic isolates a panicking file from the rest of the batch.
func (p *Pool) recoverPanic(rec types.FileRecord) {
	if r := recover(); r != nil {
		p.stats.panics.Add(1)
		logger.Error("worker panicked", "path", rec.Path, "panic", r)
	}
}

// relieveMemory pauses when host memory use is above the high-water mark.
func (p *Pool) relieveMemory(ctx context.Context) error {
	if p.memory == nil {
		return nil
	}
	used, err := p.memory.MemoryPercent(ctx)
	if err != nil {
		logger.Debug("memory sample failed", "err", err)
		return nil
	}
	if used <= p.highWater {
		return nil
	}

	logger.Warn("memory pressure, pausing to allow reclamation",
		"used_percent", fmt.Sprintf("%.1f", used), "pause", p.reliefPause)
	p.stats.reliefPauses.Add(1)
	debug.FreeOSMemory()
	return p.gate.Sleep(ctx, p.reliefPause)
}

// ReliefPauses returns how many memory-relief pauses have been taken.
func (p *Pool) ReliefPauses() int64 { return p.stats.reliefPauses.Load() }

// Panics returns how many worker panics have been recovered.
func (p *Pool) Panics() int64 { return p.stats.panics.Load() }

// String summarizes pool activity.
func (p *Pool) String() string { return p.stats.String() }
