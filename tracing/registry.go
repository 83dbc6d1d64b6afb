package tracing

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Default capacities, matching the fixed arena of the tracer: the slot
// table and every per-thread sample buffer are sized once and never grow.
const (
	DefaultMaxThreads = 12
	DefaultMaxSamples = 64 * 1024
)

// SkipEnv names the environment variable holding a whole number of
// seconds to wait after the first registration before samples are
// retained. Absent or empty means no delay.
const SkipEnv = "THREADTRACERSKIP"

// clockReader isolates the raw clock and scheduler-counter reads so tests
// can substitute a deterministic source.
type clockReader interface {
	wall() (int64, error)
	threadCPU() (int64, error)
	threadRusage() (voluntary, preemptive int64, err error)
}

// Registry owns the process-wide tracing state: the thread slot table,
// the global clock calibration, and the recording flag. One Registry is
// meant to live from process start to exit.
//
// The only mutable state shared between threads is the slot counter and
// the recording flag, both atomic. Everything else is either written once
// during calibration or owned exclusively by a single thread.
type Registry struct {
	maxThreads int
	maxSamples int
	skip       time.Duration
	skipSet    bool

	clocks clockReader
	pid    int

	calibrate  sync.Once
	wallOffset int64
	wallCutoff int64
	recording  atomic.Bool

	nextSlot atomic.Int64
	slots    []slot
	byTID    sync.Map // thread ID -> slot index
}

// slot is one thread's fixed identity in the registry plus its
// exclusively owned sample buffer.
type slot struct {
	name    string
	tid     int
	samples []Sample
}

// NewRegistry creates a Registry with the default capacities. The
// retention delay is read from THREADTRACERSKIP at the first
// registration unless WithSkip overrides it.
func NewRegistry() *Registry {
	return &Registry{
		maxThreads: DefaultMaxThreads,
		maxSamples: DefaultMaxSamples,
		clocks:     unixClocks{},
		pid:        os.Getpid(),
	}
}

// WithMaxThreads sets how many threads can register. Must be called
// before the first registration.
func (r *Registry) WithMaxThreads(n int) *Registry {
	if n <= 0 {
		panic("max threads must be positive")
	}

	r.maxThreads = n

	return r
}

// WithMaxSamples sets the per-thread sample buffer capacity. Must be
// called before the first registration.
func (r *Registry) WithMaxSamples(n int) *Registry {
	if n <= 0 {
		panic("max samples must be positive")
	}

	r.maxSamples = n

	return r
}

// WithSkip sets the retention delay directly, overriding THREADTRACERSKIP.
func (r *Registry) WithSkip(d time.Duration) *Registry {
	if d < 0 {
		panic("skip duration must not be negative")
	}

	r.skip = d
	r.skipSet = true

	return r
}

// withClocks substitutes the clock source. Test seam.
func (r *Registry) withClocks(c clockReader) *Registry {
	r.clocks = c
	return r
}

// Register makes the calling goroutine known to the tracer and returns
// the handle it must use for stamping. The goroutine is locked to its OS
// thread, because the thread CPU clock and the context-switch counters
// are per-kernel-thread readings.
//
// The very first registration calibrates the global clock offset, derives
// the retention cutoff, and enables recording. Registration beyond the
// configured capacity fails with ErrNoCapacity; registering the same OS
// thread twice fails with ErrAlreadyRegistered.
func (r *Registry) Register(name string) (*Thread, error) {
	r.calibrate.Do(r.init)

	runtime.LockOSThread()
	tid := threadID()

	if _, ok := r.byTID.Load(tid); ok {
		runtime.UnlockOSThread()
		return nil, ErrAlreadyRegistered
	}

	idx := int(r.nextSlot.Add(1)) - 1
	if idx >= r.maxThreads {
		// Pin the counter at the limit so it cannot overflow no matter
		// how many threads keep trying.
		r.nextSlot.Store(int64(r.maxThreads))
		runtime.UnlockOSThread()

		return nil, ErrNoCapacity
	}

	s := &r.slots[idx]
	s.name = name
	s.tid = tid
	s.samples = make([]Sample, 0, r.maxSamples)

	r.byTID.Store(tid, idx)

	return &Thread{registry: r, slot: s, index: idx}, nil
}

// init runs once, on whichever thread registers first. Enabling the
// recording flag is the last step, so a concurrent registrant that
// observes recording enabled also observes the calibrated offset.
func (r *Registry) init() {
	r.slots = make([]slot, r.maxThreads)

	wall, err := r.clocks.wall()
	if err != nil {
		// Recording stays off; every stamp reports ErrNotRecording.
		fmt.Fprintf(os.Stderr,
			"ThreadTracer: monotonic clock unavailable: %v\n", err)
		return
	}

	skip := r.skip
	if !r.skipSet {
		skip = skipFromEnv()
	}

	r.wallOffset = wall
	r.wallCutoff = wall + skip.Nanoseconds()

	if skip > 0 {
		fmt.Fprintf(os.Stderr,
			"ThreadTracer: skipping the first %v before recording.\n", skip)
	}

	r.recording.Store(true)
}

func skipFromEnv() time.Duration {
	v := os.Getenv(SkipEnv)
	if v == "" {
		return 0
	}

	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		fmt.Fprintf(os.Stderr,
			"ThreadTracer: ignoring %s=%q: not a whole number of seconds\n",
			SkipEnv, v)
		return 0
	}

	return time.Duration(secs) * time.Second
}

// Recording reports whether the registry is currently accepting samples.
func (r *Registry) Recording() bool {
	return r.recording.Load()
}

// StopRecording disables recording. Idempotent; recording never turns
// back on.
func (r *Registry) StopRecording() {
	r.recording.Store(false)
}

// threadCount returns how many slots have been handed out.
func (r *Registry) threadCount() int {
	n := int(r.nextSlot.Load())
	if n > r.maxThreads {
		n = r.maxThreads
	}

	return n
}
