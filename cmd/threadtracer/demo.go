package main

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/phuslu/log"
	"github.com/shirou/gopsutil/process"
	"github.com/spf13/cobra"

	"github.com/tracelab/threadtracer/recording"
	"github.com/tracelab/threadtracer/tracing"
)

var (
	demoOutput  string
	demoThreads int
	demoSpans   int
	demoSkip    time.Duration
	demoDB      string
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a synthetic multi-threaded workload and write its timeline.",
	RunE:  runDemo,
}

func init() {
	demoCmd.Flags().StringVarP(&demoOutput, "output", "o", "",
		"timeline output path (default threadtracer.<pid>.json)")
	demoCmd.Flags().IntVar(&demoThreads, "threads", 4,
		"number of worker threads")
	demoCmd.Flags().IntVar(&demoSpans, "spans", 50,
		"spans each worker records")
	demoCmd.Flags().DurationVar(&demoSkip, "skip", 0,
		"delay before samples are retained (overrides "+tracing.SkipEnv+")")
	demoCmd.Flags().StringVar(&demoDB, "db", "",
		"also archive raw samples into this SQLite database")

	rootCmd.AddCommand(demoCmd)
}

func runDemo(_ *cobra.Command, _ []string) error {
	reg := tracing.NewRegistry().WithMaxThreads(demoThreads)
	if demoSkip > 0 {
		reg = reg.WithSkip(demoSkip)
	}

	log.Info().
		Int("threads", demoThreads).
		Int("spans", demoSpans).
		Msg("starting workload")

	var wg sync.WaitGroup
	for i := 0; i < demoThreads; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			work(reg, id)
		}(i)
	}
	wg.Wait()

	summary, err := reg.WriteReport(demoOutput)
	if err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	log.Info().
		Int("written", summary.Written).
		Int("discarded", summary.Discarded).
		Str("path", summary.Path).
		Msg("timeline written")

	if demoDB != "" {
		rec := recording.New(demoDB)
		rows, err := reg.DumpSamples(rec)
		if err != nil {
			return fmt.Errorf("archiving samples: %w", err)
		}
		log.Info().Int("rows", rows).Str("db", demoDB).Msg("samples archived")
	}

	logProcessStats()

	return nil
}

// work registers the calling goroutine as one traced thread and brackets
// alternating compute and sleep spans.
func work(reg *tracing.Registry, id int) {
	th, err := reg.Register(fmt.Sprintf("worker-%02d", id))
	if err != nil {
		// A thread that failed to register must not stamp events.
		log.Warn().Int("worker", id).Err(err).Msg("registration failed")
		return
	}

	for i := 0; i < demoSpans; i++ {
		mark(th.Begin("demo", "compute"))
		spin(2 * time.Millisecond)
		mark(th.End("demo", "compute"))

		mark(th.Begin("demo", "wait"))
		time.Sleep(time.Millisecond)
		mark(th.End("demo", "wait"))
	}
}

// mark logs stamp failures that are not deliberate drops.
func mark(_ int, err error) {
	if err == nil || errors.Is(err, tracing.ErrBeforeCutoff) {
		return
	}

	log.Debug().Err(err).Msg("stamp failed")
}

// spin burns CPU on the calling thread for roughly d.
func spin(d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
	}
}

func logProcessStats() {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return
	}

	memInfo, err := p.MemoryInfo()
	if err != nil {
		return
	}

	log.Info().
		Float64("cpu_percent", cpuPercent).
		Uint64("rss_bytes", memInfo.RSS).
		Msg("process usage")
}
