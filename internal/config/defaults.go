// Package config loads dupevid settings from a YAML file, environment
// variables and built-in defaults.
package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/ivoronin/dupevid/internal/pool"
	"github.com/ivoronin/dupevid/internal/throttle"
	"github.com/ivoronin/dupevid/internal/walker"
)

// Default configuration values.
const (
	// DefaultWorkers is the number of files hashed concurrently.
	DefaultWorkers = pool.DefaultWorkers

	// DefaultBatchSize is the number of files per pool batch.
	DefaultBatchSize = pool.DefaultBatchSize

	// DefaultCPUCeiling is the host CPU percentage above which hashing backs off.
	DefaultCPUCeiling = throttle.DefaultCeiling

	// DefaultThrottleDelay is the back-off applied above the CPU ceiling.
	DefaultThrottleDelay = throttle.DefaultDelay

	// DefaultMemoryHighWater is the host memory percentage that triggers a relief pause.
	DefaultMemoryHighWater = pool.DefaultMemoryHighWater

	// DefaultReliefPause is the length of a memory-relief pause.
	DefaultReliefPause = pool.DefaultReliefPause

	// DefaultListen is the host-mode HTTP listen address.
	DefaultListen = "127.0.0.1:8765"

	// DefaultOutput is the standalone-mode result file.
	DefaultOutput = "duplicates.json"

	// DefaultShutdownTimeout bounds graceful HTTP shutdown.
	DefaultShutdownTimeout = 5 * time.Second
)

// DefaultExtensions are the video file extensions scanned by default.
var DefaultExtensions = walker.DefaultExtensions

// ConfigDir returns $XDG_CONFIG_HOME/dupevid.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, "dupevid")
}

// DefaultCachePath returns the digest cache location under the XDG cache directory.
func DefaultCachePath() string {
	return filepath.Join(xdg.CacheHome, "dupevid", "hashes.db")
}
