package tracing

import "errors"

// Per-call conditions return to the immediate caller and leave other
// threads untouched. ErrCapacityExceeded and ErrResourceUnavailable are
// systemic: they permanently disable recording process-wide, though data
// collected before them remains reportable.
var (
	// ErrNoCapacity is returned by Register when all thread slots are
	// taken. A thread whose registration failed must not stamp events.
	ErrNoCapacity = errors.New("threadtracer: all thread slots are taken")

	// ErrAlreadyRegistered is returned by Register when the calling OS
	// thread already holds a slot in this registry.
	ErrAlreadyRegistered = errors.New("threadtracer: thread already registered")

	// ErrNotRecording is returned by Stamp when recording is disabled,
	// either because no thread registered yet or because recording has
	// been stopped.
	ErrNotRecording = errors.New("threadtracer: recording is not enabled")

	// ErrBeforeCutoff is returned by Stamp for events that predate the
	// configured retention cutoff. The event is dropped silently; this is
	// a deliberate drop, not a failure.
	ErrBeforeCutoff = errors.New("threadtracer: sample predates the recording cutoff")

	// ErrCapacityExceeded is returned by Stamp when the calling thread's
	// sample buffer is full. Recording stops process-wide.
	ErrCapacityExceeded = errors.New("threadtracer: sample buffer full, recording stopped")

	// ErrResourceUnavailable is returned by Stamp when the clock or
	// resource-usage read fails. Recording stops process-wide.
	ErrResourceUnavailable = errors.New("threadtracer: resource usage unavailable, recording stopped")

	// ErrNoData is returned by the report pass when no thread ever
	// registered.
	ErrNoData = errors.New("threadtracer: no threads registered, nothing to report")
)
