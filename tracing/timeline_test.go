package tracing

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type reportEvent struct {
	Cat  string                 `json:"cat"`
	PID  int                    `json:"pid"`
	TID  int                    `json:"tid"`
	TS   int64                  `json:"ts"`
	TTS  int64                  `json:"tts"`
	Ph   string                 `json:"ph"`
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

type reportDoc struct {
	TraceEvents []reportEvent `json:"traceEvents"`
}

func decodeTimeline(data []byte) reportDoc {
	var doc reportDoc
	ExpectWithOffset(1, json.Unmarshal(data, &doc)).To(Succeed())
	return doc
}

func spansOf(doc reportDoc) []reportEvent {
	var spans []reportEvent
	for _, ev := range doc.TraceEvents {
		if ev.Ph == "B" || ev.Ph == "E" {
			spans = append(spans, ev)
		}
	}
	return spans
}

func metadataOf(doc reportDoc, name string) []reportEvent {
	var meta []reportEvent
	for _, ev := range doc.TraceEvents {
		if ev.Ph == "M" && ev.Name == name {
			meta = append(meta, ev)
		}
	}
	return meta
}

var _ = Describe("Timeline report", func() {
	var (
		clocks *fakeClocks
		reg    *Registry
	)

	BeforeEach(func() {
		clocks = &fakeClocks{wallNow: 1e12, cpuNow: 2e9}
		reg = NewRegistry().
			WithMaxThreads(3).
			WithMaxSamples(64).
			WithSkip(0).
			withClocks(clocks)
	})

	It("should fail with no data when nobody registered", func() {
		var buf bytes.Buffer

		_, err := reg.WriteTimeline(&buf)

		Expect(err).To(MatchError(ErrNoData))
		Expect(buf.Len()).To(BeZero())
	})

	It("should derive the duty cycle from the cpu and wall deltas", func() {
		th, err := reg.Register("io-thread")
		Expect(err).ToNot(HaveOccurred())

		_, err = th.Begin("io", "read")
		Expect(err).ToNot(HaveOccurred())

		clocks.advance(5*time.Millisecond, 4*time.Millisecond)

		_, err = th.End("io", "read")
		Expect(err).ToNot(HaveOccurred())

		var buf bytes.Buffer
		summary, err := reg.WriteTimeline(&buf)
		Expect(err).ToNot(HaveOccurred())
		Expect(summary.Written).To(Equal(2))
		Expect(summary.Discarded).To(BeZero())

		doc := decodeTimeline(buf.Bytes())
		spans := spansOf(doc)
		Expect(spans).To(HaveLen(2))

		begin, end := spans[0], spans[1]
		Expect(begin.Ph).To(Equal("B"))
		Expect(begin.Cat).To(Equal("io"))
		Expect(begin.Name).To(Equal("read"))
		Expect(begin.TS).To(BeZero())
		Expect(begin.Args).To(BeEmpty())

		Expect(end.Ph).To(Equal("E"))
		Expect(end.TS).To(Equal(int64(5000)), "ts is wall microseconds")
		Expect(end.Args).To(HaveKeyWithValue("preempted", BeNumerically("==", 0)))
		Expect(end.Args).To(HaveKeyWithValue("voluntary", BeNumerically("==", 0)))
		Expect(end.Args).To(HaveKeyWithValue("dutycycle(%)", BeNumerically("==", 80)))

		meta := metadataOf(doc, "thread_name")
		Expect(meta).To(HaveLen(1))
		Expect(meta[0].Args).To(HaveKeyWithValue("name", "io-thread"))
	})

	It("should report the context switches accumulated inside the span", func() {
		th, err := reg.Register("worker")
		Expect(err).ToNot(HaveOccurred())

		clocks.switchCounters(10, 2)
		_, err = th.Begin("cpu", "crunch")
		Expect(err).ToNot(HaveOccurred())

		clocks.advance(time.Millisecond, time.Millisecond)
		clocks.switchCounters(17, 5)
		_, err = th.End("cpu", "crunch")
		Expect(err).ToNot(HaveOccurred())

		var buf bytes.Buffer
		_, err = reg.WriteTimeline(&buf)
		Expect(err).ToNot(HaveOccurred())

		end := spansOf(decodeTimeline(buf.Bytes()))[1]
		Expect(end.Args).To(HaveKeyWithValue("voluntary", BeNumerically("==", 7)))
		Expect(end.Args).To(HaveKeyWithValue("preempted", BeNumerically("==", 3)))
	})

	It("should emit zero duty cycle for a zero-length span", func() {
		th, err := reg.Register("worker")
		Expect(err).ToNot(HaveOccurred())

		_, err = th.Begin("cpu", "blip")
		Expect(err).ToNot(HaveOccurred())
		_, err = th.End("cpu", "blip")
		Expect(err).ToNot(HaveOccurred())

		var buf bytes.Buffer
		_, err = reg.WriteTimeline(&buf)
		Expect(err).ToNot(HaveOccurred())

		end := spansOf(decodeTimeline(buf.Bytes()))[1]
		Expect(end.Args).To(HaveKeyWithValue("dutycycle(%)", BeNumerically("==", 0)))
	})

	It("should match the innermost begin for nested spans", func() {
		th, err := reg.Register("worker")
		Expect(err).ToNot(HaveOccurred())

		_, err = th.Begin("job", "outer")
		Expect(err).ToNot(HaveOccurred())
		clocks.advance(time.Millisecond, time.Millisecond)

		_, err = th.Begin("job", "inner")
		Expect(err).ToNot(HaveOccurred())
		clocks.advance(2*time.Millisecond, time.Millisecond)

		_, err = th.End("job", "inner")
		Expect(err).ToNot(HaveOccurred())
		clocks.advance(time.Millisecond, time.Millisecond)

		_, err = th.End("job", "outer")
		Expect(err).ToNot(HaveOccurred())

		var buf bytes.Buffer
		summary, err := reg.WriteTimeline(&buf)
		Expect(err).ToNot(HaveOccurred())
		Expect(summary.Written).To(Equal(4))
		Expect(summary.Discarded).To(BeZero())

		spans := spansOf(decodeTimeline(buf.Bytes()))
		Expect(spans[2].Name).To(Equal("inner"))
		Expect(spans[2].TS - spans[1].TS).To(Equal(int64(2000)))
		Expect(spans[3].Name).To(Equal("outer"))
		Expect(spans[3].TS - spans[0].TS).To(Equal(int64(4000)))
	})

	It("should drop an end with no matching begin and count it once", func() {
		th, err := reg.Register("worker")
		Expect(err).ToNot(HaveOccurred())

		_, err = th.End("job", "orphan")
		Expect(err).ToNot(HaveOccurred())

		var buf bytes.Buffer
		summary, err := reg.WriteTimeline(&buf)
		Expect(err).ToNot(HaveOccurred())
		Expect(summary.Written).To(BeZero())
		Expect(summary.Discarded).To(Equal(1))

		doc := decodeTimeline(buf.Bytes())
		Expect(spansOf(doc)).To(BeEmpty())
		Expect(metadataOf(doc, "thread_name")).To(HaveLen(1))
	})

	It("should never match tags across threads", func() {
		first, err := reg.Register("first")
		Expect(err).ToNot(HaveOccurred())

		_, err = first.Begin("job", "shared")
		Expect(err).ToNot(HaveOccurred())

		done := make(chan *Thread)
		go func() {
			defer GinkgoRecover()
			second, err := reg.Register("second")
			Expect(err).ToNot(HaveOccurred())
			_, err = second.End("job", "shared")
			Expect(err).ToNot(HaveOccurred())
			done <- second
		}()
		<-done

		var buf bytes.Buffer
		summary, err := reg.WriteTimeline(&buf)
		Expect(err).ToNot(HaveOccurred())
		Expect(summary.Discarded).To(Equal(1),
			"the second thread's end must not see the first thread's begin")
	})

	It("should produce the same document when reported twice", func() {
		th, err := reg.Register("worker")
		Expect(err).ToNot(HaveOccurred())

		_, err = th.Begin("io", "read")
		Expect(err).ToNot(HaveOccurred())
		clocks.advance(time.Millisecond, time.Millisecond)
		_, err = th.End("io", "read")
		Expect(err).ToNot(HaveOccurred())

		var first, second bytes.Buffer

		s1, err := reg.WriteTimeline(&first)
		Expect(err).ToNot(HaveOccurred())

		s2, err := reg.WriteTimeline(&second)
		Expect(err).ToNot(HaveOccurred())

		Expect(s2).To(Equal(s1))
		Expect(second.String()).To(Equal(first.String()))
	})

	It("should write the report file and summarize it", func() {
		th, err := reg.Register("worker")
		Expect(err).ToNot(HaveOccurred())

		_, err = th.Begin("io", "read")
		Expect(err).ToNot(HaveOccurred())
		clocks.advance(time.Millisecond, time.Millisecond)
		_, err = th.End("io", "read")
		Expect(err).ToNot(HaveOccurred())

		path := filepath.Join(GinkgoT().TempDir(), "trace.json")
		summary, err := reg.WriteReport(path)

		Expect(err).ToNot(HaveOccurred())
		Expect(summary.Written).To(Equal(2))
		Expect(summary.Path).To(Equal(path))

		data, err := os.ReadFile(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(spansOf(decodeTimeline(data))).To(HaveLen(2))
	})

	It("should not create a file when there is nothing to report", func() {
		path := filepath.Join(GinkgoT().TempDir(), "trace.json")

		_, err := reg.WriteReport(path)

		Expect(err).To(MatchError(ErrNoData))
		_, statErr := os.Stat(path)
		Expect(os.IsNotExist(statErr)).To(BeTrue())
	})
})
