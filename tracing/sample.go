// Package tracing records begin/end marks from registered threads and
// turns them into a timeline document after recording stops.
//
// Threads register once, stamp events through the handle they get back,
// and a single report pass at the end pairs the marks and derives
// scheduling metrics. Each thread owns its sample buffer exclusively, so
// the hot path needs no locks.
package tracing

// Phase marks whether a sample opens or closes a named span.
type Phase string

// The two phases a sample can carry, matching the Trace Event Format
// duration event phases.
const (
	PhaseBegin Phase = "B"
	PhaseEnd   Phase = "E"
)

// A Sample is one recorded mark together with the scheduling state of the
// thread at the moment of recording. Samples are append-only and owned by
// the thread that recorded them.
type Sample struct {
	Cat   string `json:"cat"`
	Tag   string `json:"tag"`
	Phase Phase  `json:"phase"`

	// WallTime is nanoseconds on the monotonic clock, normalized against
	// the registry-wide offset captured at the first registration, so
	// values compare directly across threads.
	WallTime int64 `json:"wall_time"`

	// CPUTime is the raw thread CPU clock in nanoseconds.
	CPUTime int64 `json:"cpu_time"`

	// Cumulative context-switch counters for the thread, as reported by
	// the kernel at stamping time.
	PreemptiveSwitches int64 `json:"preemptive_switches"`
	VoluntarySwitches  int64 `json:"voluntary_switches"`
}
