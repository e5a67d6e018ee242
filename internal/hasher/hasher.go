// Package hasher computes SHA-256 content digests for whole files.
//
// Files are streamed in fixed-size chunks. Before every chunk read the
// hasher passes a suspension point:
//
//  1. cancel requested  → abort, return an empty Result and gate.ErrCancelled
//  2. paused            → block on the gate until resumed
//  3. CPU above ceiling → sleep for the throttle delay, then continue
//
// Cancellation is therefore observed at chunk boundaries; an in-flight read
// always completes.
package hasher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ivoronin/dupevid/internal/cache"
	"github.com/ivoronin/dupevid/internal/gate"
	"github.com/ivoronin/dupevid/internal/logging"
	"github.com/ivoronin/dupevid/internal/throttle"
	"github.com/ivoronin/dupevid/internal/types"
)

// DefaultChunkSize is the read size between suspension points.
const DefaultChunkSize = 8192

var logger = logging.Get("hasher")

// Result is the outcome of hashing one file.
// An empty Digest means the file was skipped and must never be grouped.
type Result struct {
	Digest string
	Bytes  int64 // Bytes read from disk (0 on cache hit)
	Cached bool
}

// Empty reports whether the file produced no usable digest.
func (r Result) Empty() bool { return r.Digest == "" }

// Options configures a Hasher. Every field is optional.
type Options struct {
	Gate      *gate.Gate
	Throttle  *throttle.Throttle
	Cache     *cache.Cache
	ChunkSize int
	OnChunk   func(n int) // Called after each chunk with the bytes read
}

// Hasher is safe for concurrent use; it holds no per-file state.
type Hasher struct {
	gate      *gate.Gate
	throttle  *throttle.Throttle
	cache     *cache.Cache
	chunkSize int
	onChunk   func(int)
}

// New creates a Hasher.
func New(opts Options) *Hasher {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	return &Hasher{
		gate:      opts.Gate,
		throttle:  opts.Throttle,
		cache:     opts.Cache,
		chunkSize: opts.ChunkSize,
		onChunk:   opts.OnChunk,
	}
}

// Hash returns the content digest of rec.
//
// Errors are per-file: a non-nil error always comes with an empty Digest,
// and callers treat it as "file skipped". gate.ErrCancelled (or a context
// error) means the scan is stopping rather than the file being bad.
func (h *Hasher) Hash(ctx context.Context, rec types.FileRecord) (Result, error) {
	if cached, err := h.cache.Lookup(rec); err != nil {
		logger.Debug("cache lookup failed", "path", rec.Path, "err", err)
	} else if cached != nil {
		return Result{Digest: hex.EncodeToString(cached), Cached: true}, nil
	}

	f, err := os.Open(rec.Path)
	if err != nil {
		logger.Debug("cannot open file", "path", rec.Path, "err", err)
		return Result{}, fmt.Errorf("%s: %w", rec.Path, err)
	}
	defer func() { _ = f.Close() }()

	digest := sha256.New()
	buf := make([]byte, h.chunkSize)
	var total int64

	for {
		if err := h.checkpoint(ctx); err != nil {
			return Result{Bytes: total}, err
		}

		n, err := f.Read(buf)
		if n > 0 {
			digest.Write(buf[:n])
			total += int64(n)
			if h.onChunk != nil {
				h.onChunk(n)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Debug("read failed", "path", rec.Path, "err", err)
			return Result{Bytes: total}, fmt.Errorf("%s: %w", rec.Path, err)
		}
	}

	if total == 0 {
		return Result{}, nil
	}

	sum := digest.Sum(nil)
	if err := h.cache.Store(rec, sum); err != nil {
		logger.Debug("cache store failed", "path", rec.Path, "err", err)
	}
	return Result{Digest: hex.EncodeToString(sum), Bytes: total}, nil
}

// checkpoint is the per-chunk suspension point. Cancel is checked before
// pause inside gate.Wait; throttling comes last.
func (h *Hasher) checkpoint(ctx context.Context) error {
	if err := h.gate.Wait(ctx); err != nil {
		return err
	}
	if h.throttle.ShouldDelay(ctx) {
		return h.gate.Sleep(ctx, h.throttle.Delay())
	}
	return nil
}
