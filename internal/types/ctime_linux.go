package types

import (
	"syscall"
	"time"
)

// createdTime returns the inode change time, the closest Linux has to a creation time.
func createdTime(stat *syscall.Stat_t) time.Time {
	return time.Unix(stat.Ctim.Unix())
}
