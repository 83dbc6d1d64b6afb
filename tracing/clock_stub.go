//go:build !linux

package tracing

import (
	"errors"
	"os"
)

var errClockUnsupported = errors.New(
	"threadtracer: per-thread clocks and rusage require linux")

// unixClocks has no useful implementation off Linux: there is no portable
// per-thread CPU clock or RUSAGE_THREAD equivalent. Every stamp fails
// with ErrResourceUnavailable through the normal error path.
type unixClocks struct{}

func (unixClocks) wall() (int64, error) {
	return 0, errClockUnsupported
}

func (unixClocks) threadCPU() (int64, error) {
	return 0, errClockUnsupported
}

func (unixClocks) threadRusage() (voluntary, preemptive int64, err error) {
	return 0, 0, errClockUnsupported
}

func threadID() int {
	return os.Getpid()
}
