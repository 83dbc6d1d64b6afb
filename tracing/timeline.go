package tracing

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/shirou/gopsutil/process"
	"github.com/tebeka/atexit"
)

// ReportSummary describes one completed report pass.
type ReportSummary struct {
	// Written counts the trace events emitted, metadata records excluded.
	Written int
	// Discarded counts End samples that had no matching Begin on their
	// own thread and were omitted.
	Discarded int
	// Path is the file the report went to; empty for WriteTimeline.
	Path string
}

// spanEvent is one duration event in Chrome's Trace Event Format.
// Timestamps are microseconds: ts on the shared wall clock, tts on the
// thread CPU clock.
type spanEvent struct {
	Cat  string `json:"cat"`
	PID  int    `json:"pid"`
	TID  int    `json:"tid"`
	TS   int64  `json:"ts"`
	TTS  int64  `json:"tts"`
	Ph   Phase  `json:"ph"`
	Name string `json:"name"`
	Args any    `json:"args"`
}

// endArgs carries the metrics derived from a matched Begin/End pair.
type endArgs struct {
	Preempted int64 `json:"preempted"`
	Voluntary int64 `json:"voluntary"`
	DutyCycle int64 `json:"dutycycle(%)"`
}

type metaArgs struct {
	Name string `json:"name"`
}

type metaEvent struct {
	Name string   `json:"name"`
	Ph   string   `json:"ph"`
	PID  int      `json:"pid"`
	TID  int      `json:"tid"`
	Args metaArgs `json:"args"`
}

// WriteReport freezes recording and serializes the timeline document to
// path. An empty path selects "threadtracer.<pid>.json" in the working
// directory. The pass only reads the sample buffers, so calling it again
// produces the same document.
func (r *Registry) WriteReport(path string) (ReportSummary, error) {
	r.StopRecording()

	if path == "" {
		path = fmt.Sprintf("threadtracer.%d.json", r.pid)
	}

	if r.threadCount() == 0 {
		return ReportSummary{}, ErrNoData
	}

	f, err := os.Create(path)
	if err != nil {
		return ReportSummary{}, fmt.Errorf("threadtracer: creating report: %w", err)
	}

	summary, werr := r.WriteTimeline(f)
	summary.Path = path

	cerr := f.Close()
	if werr != nil {
		return summary, werr
	}
	if cerr != nil {
		return summary, fmt.Errorf("threadtracer: closing report: %w", cerr)
	}

	fmt.Fprintf(os.Stderr, "ThreadTracer: wrote %d events (%d discarded) to %s\n",
		summary.Written, summary.Discarded, path)

	return summary, nil
}

// ReportAtExit arranges for the report to be written when the process
// exits through atexit.Exit.
func (r *Registry) ReportAtExit(path string) {
	atexit.Register(func() {
		if _, err := r.WriteReport(path); err != nil && !errors.Is(err, ErrNoData) {
			fmt.Fprintf(os.Stderr, "ThreadTracer: report at exit failed: %v\n", err)
		}
	})
}

// WriteTimeline freezes recording and streams the timeline document to w.
// Threads appear in registration order, samples in recorded order,
// followed by one thread_name metadata record per thread and, when the
// process name can be resolved, one process_name record.
func (r *Registry) WriteTimeline(w io.Writer) (ReportSummary, error) {
	r.StopRecording()

	count := r.threadCount()
	if count == 0 {
		return ReportSummary{}, ErrNoData
	}

	tw := &timelineWriter{w: w}
	tw.open()

	var summary ReportSummary
	for i := 0; i < count; i++ {
		written, discarded := r.emitThreadEvents(tw, &r.slots[i])
		summary.Written += written
		summary.Discarded += discarded
	}

	for i := 0; i < count; i++ {
		s := &r.slots[i]
		tw.writeRecord(metaEvent{
			Name: "thread_name",
			Ph:   "M",
			PID:  r.pid,
			TID:  s.tid,
			Args: metaArgs{Name: s.name},
		})
	}

	if name := processName(r.pid); name != "" {
		tw.writeRecord(metaEvent{
			Name: "process_name",
			Ph:   "M",
			PID:  r.pid,
			Args: metaArgs{Name: name},
		})
	}

	tw.finish()
	if tw.err != nil {
		return summary, fmt.Errorf("threadtracer: writing report: %w", tw.err)
	}

	return summary, nil
}

// emitThreadEvents walks one thread's buffer in record order. Begin
// samples are emitted directly with empty args and pushed as open spans;
// an End sample pops the innermost open Begin with the same tag and
// carries the derived metrics. An End with no open Begin is discarded.
// Matching never crosses threads.
func (r *Registry) emitThreadEvents(
	tw *timelineWriter,
	s *slot,
) (written, discarded int) {
	open := make([]int, 0, 16) // indices of unmatched Begin samples

	for i := range s.samples {
		sm := &s.samples[i]

		ev := spanEvent{
			Cat:  sm.Cat,
			PID:  r.pid,
			TID:  s.tid,
			TS:   sm.WallTime / 1000,
			TTS:  sm.CPUTime / 1000,
			Ph:   sm.Phase,
			Name: sm.Tag,
			Args: struct{}{},
		}

		switch sm.Phase {
		case PhaseBegin:
			open = append(open, i)

		case PhaseEnd:
			j := len(open) - 1
			for j >= 0 && s.samples[open[j]].Tag != sm.Tag {
				j--
			}
			if j < 0 {
				discarded++
				continue
			}

			begin := &s.samples[open[j]]
			open = append(open[:j], open[j+1:]...)

			wallDur := sm.WallTime - begin.WallTime
			cpuDur := sm.CPUTime - begin.CPUTime

			var duty int64
			if wallDur > 0 {
				duty = 100 * cpuDur / wallDur
			}

			ev.Args = endArgs{
				Preempted: sm.PreemptiveSwitches - begin.PreemptiveSwitches,
				Voluntary: sm.VoluntarySwitches - begin.VoluntarySwitches,
				DutyCycle: duty,
			}
		}

		tw.writeRecord(ev)
		written++
	}

	return written, discarded
}

func processName(pid int) string {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return ""
	}

	name, err := p.Name()
	if err != nil {
		return ""
	}

	return name
}

// timelineWriter streams one {"traceEvents":[...]} document, marshaling
// records one at a time. The first write error sticks and later writes
// become no-ops.
type timelineWriter struct {
	w   io.Writer
	n   int
	err error
}

func (t *timelineWriter) open() {
	t.print("{\"traceEvents\":[\n")
}

func (t *timelineWriter) finish() {
	t.print("\n]}\n")
}

func (t *timelineWriter) writeRecord(v any) {
	if t.err != nil {
		return
	}

	b, err := json.Marshal(v)
	if err != nil {
		t.err = err
		return
	}

	if t.n > 0 {
		t.print(",\n")
	}
	t.print(string(b))
	t.n++
}

func (t *timelineWriter) print(s string) {
	if t.err != nil {
		return
	}

	_, t.err = io.WriteString(t.w, s)
}
