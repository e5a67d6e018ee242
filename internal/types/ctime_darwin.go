package types

import (
	"syscall"
	"time"
)

// createdTime returns the file birth time.
func createdTime(stat *syscall.Stat_t) time.Time {
	return time.Unix(stat.Birthtimespec.Unix())
}
