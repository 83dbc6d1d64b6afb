//go:build linux

package tracing

import "golang.org/x/sys/unix"

// unixClocks reads the kernel clocks and scheduling counters for the
// calling thread. All reads assume the goroutine is locked to its OS
// thread; Register takes care of that.
type unixClocks struct{}

func (unixClocks) wall() (int64, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0, err
	}

	return ts.Nano(), nil
}

func (unixClocks) threadCPU() (int64, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_THREAD_CPUTIME_ID, &ts); err != nil {
		return 0, err
	}

	return ts.Nano(), nil
}

func (unixClocks) threadRusage() (voluntary, preemptive int64, err error) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_THREAD, &ru); err != nil {
		return 0, 0, err
	}

	return int64(ru.Nvcsw), int64(ru.Nivcsw), nil
}

// threadID returns the kernel thread ID of the calling thread.
func threadID() int {
	return unix.Gettid()
}
