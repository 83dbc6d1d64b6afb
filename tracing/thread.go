package tracing

// Thread is the stamping handle a thread receives at registration. It
// must only be used from the goroutine that registered: the sample buffer
// behind it has exactly one writer, which is what lets the hot path run
// without locks.
//
// A nil Thread is a valid receiver; every stamp through it fails with
// ErrNotRecording. This lets callers ignore a failed registration and
// keep the tracing calls in place.
type Thread struct {
	registry *Registry
	slot     *slot
	index    int
}

// Index returns the slot index assigned at registration.
func (t *Thread) Index() int {
	return t.index
}

// Name returns the name the thread registered under.
func (t *Thread) Name() string {
	return t.slot.name
}

// Begin stamps the opening edge of a span.
func (t *Thread) Begin(cat, tag string) (int, error) {
	return t.Stamp(cat, tag, PhaseBegin)
}

// End stamps the closing edge of a span.
func (t *Thread) End(cat, tag string) (int, error) {
	return t.Stamp(cat, tag, PhaseEnd)
}

// Stamp appends one sample to the thread's buffer and returns its index
// within that buffer.
//
// The clock, thread CPU clock, and context-switch counters are read in
// immediate succession so the sample is one coherent snapshot. A failed
// resource read is fatal for the whole session: recording stops and every
// later stamp from any thread fails with ErrNotRecording. A sample that
// predates the retention cutoff is dropped silently with ErrBeforeCutoff.
// A full buffer also stops recording process-wide, preserving what was
// collected so far rather than silently growing.
func (t *Thread) Stamp(cat, tag string, phase Phase) (int, error) {
	if t == nil {
		return -1, ErrNotRecording
	}

	r := t.registry
	if !r.recording.Load() {
		return -1, ErrNotRecording
	}

	wall, werr := r.clocks.wall()
	cpu, cerr := r.clocks.threadCPU()
	voluntary, preemptive, uerr := r.clocks.threadRusage()
	if werr != nil || cerr != nil || uerr != nil {
		r.recording.Store(false)
		return -1, ErrResourceUnavailable
	}

	if wall < r.wallCutoff {
		return -1, ErrBeforeCutoff
	}

	if len(t.slot.samples) >= r.maxSamples {
		r.recording.Store(false)
		return -1, ErrCapacityExceeded
	}

	t.slot.samples = append(t.slot.samples, Sample{
		Cat:                cat,
		Tag:                tag,
		Phase:              phase,
		WallTime:           wall - r.wallOffset,
		CPUTime:            cpu,
		PreemptiveSwitches: preemptive,
		VoluntarySwitches:  voluntary,
	})

	return len(t.slot.samples) - 1, nil
}

// SampleCount returns how many samples the thread has recorded so far.
func (t *Thread) SampleCount() int {
	if t == nil {
		return 0
	}

	return len(t.slot.samples)
}
