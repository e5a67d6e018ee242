// Package throttle keeps a scan from starving other workloads on the host.
//
// CPU utilization is sampled instantaneously (gopsutil compares against the
// previous call, no history is kept here) and compared with a ceiling.
// Callers that see ShouldDelay() == true sleep for Delay() before reading
// the next chunk. Samples are reused for a short interval so chunk-level
// checks stay cheap.
package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/ivoronin/dupevid/internal/logging"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// Defaults.
const (
	DefaultCeiling        = 70.0
	DefaultDelay          = 500 * time.Millisecond
	DefaultSampleInterval = 200 * time.Millisecond
)

var logger = logging.Get("throttle")

// Sampler reads instantaneous host load percentages.
type Sampler interface {
	CPUPercent(ctx context.Context) (float64, error)
	MemoryPercent(ctx context.Context) (float64, error)
}

// Host samples the local machine through gopsutil.
type Host struct{}

// CPUPercent returns overall CPU utilization since the previous call.
func (Host) CPUPercent(ctx context.Context) (float64, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, nil
	}
	return percents[0], nil
}

// MemoryPercent returns the share of physical memory in use.
func (Host) MemoryPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

// Throttle decides whether hashing should back off.
// A nil *Throttle never delays.
type Throttle struct {
	ceiling  float64
	delay    time.Duration
	interval time.Duration
	sampler  Sampler

	mu      sync.Mutex
	lastAt  time.Time
	lastCPU float64
}

// Option configures a Throttle.
type Option func(*Throttle)

// WithSampler replaces the host sampler.
func WithSampler(s Sampler) Option {
	return func(t *Throttle) { t.sampler = s }
}

// WithSampleInterval sets how long a CPU sample is reused. Zero samples on every call.
func WithSampleInterval(d time.Duration) Option {
	return func(t *Throttle) { t.interval = d }
}

// New creates a Throttle. Non-positive arguments fall back to defaults.
func New(ceilingPercent float64, delay time.Duration, opts ...Option) *Throttle {
	if ceilingPercent <= 0 {
		ceilingPercent = DefaultCeiling
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	t := &Throttle{
		ceiling:  ceilingPercent,
		delay:    delay,
		interval: DefaultSampleInterval,
		sampler:  Host{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ShouldDelay reports whether CPU utilization is above the ceiling.
// Sampling errors never delay.
func (t *Throttle) ShouldDelay(ctx context.Context) bool {
	if t == nil {
		return false
	}
	return t.cpu(ctx) > t.ceiling
}

// Delay returns the back-off duration.
func (t *Throttle) Delay() time.Duration {
	if t == nil {
		return 0
	}
	return t.delay
}

// Ceiling returns the configured CPU ceiling in percent.
func (t *Throttle) Ceiling() float64 {
	if t == nil {
		return 0
	}
	return t.ceiling
}

func (t *Throttle) cpu(ctx context.Context) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.interval > 0 && !t.lastAt.IsZero() && time.Since(t.lastAt) < t.interval {
		return t.lastCPU
	}
	pct, err := t.sampler.CPUPercent(ctx)
	if err != nil {
		logger.Debug("cpu sample failed", "err", err)
		pct = 0
	}
	t.lastCPU = pct
	t.lastAt = time.Now()
	return pct
}

// Load is a point-in-time reading of host utilization.
type Load struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}

// Sample reads CPU and memory through s, logging and zeroing failed readings.
func Sample(ctx context.Context, s Sampler) Load {
	var l Load
	if v, err := s.CPUPercent(ctx); err != nil {
		logger.Debug("cpu sample failed", "err", err)
	} else {
		l.CPUPercent = v
	}
	if v, err := s.MemoryPercent(ctx); err != nil {
		logger.Debug("memory sample failed", "err", err)
	} else {
		l.MemoryPercent = v
	}
	return l
}
