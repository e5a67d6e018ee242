//go:build !linux && !darwin

package types

import (
	"syscall"
	"time"
)

// createdTime is unavailable here; callers keep the modification time.
func createdTime(stat *syscall.Stat_t) time.Time {
	return time.Time{}
}
