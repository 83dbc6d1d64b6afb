package tracing

// SampleRecorder receives raw samples for archival. recording.Recorder
// satisfies it; any table-shaped sink will do.
type SampleRecorder interface {
	CreateTable(tableName string, sampleEntry any)
	InsertData(tableName string, entry any)
	Flush()
}

// SampleTable is the table the raw samples are archived into.
const SampleTable = "samples"

// sampleRow flattens one sample with its owning thread's identity for
// offline SQL analysis.
type sampleRow struct {
	ThreadIndex        int
	ThreadName         string
	ThreadID           int
	Cat                string
	Tag                string
	Phase              string
	WallTimeNS         int64
	CPUTimeNS          int64
	PreemptiveSwitches int64
	VoluntarySwitches  int64
}

// DumpSamples freezes recording and archives every retained sample, one
// row per sample, in the same order the report pass visits them. Returns
// the number of rows written.
func (r *Registry) DumpSamples(rec SampleRecorder) (int, error) {
	r.StopRecording()

	count := r.threadCount()
	if count == 0 {
		return 0, ErrNoData
	}

	rec.CreateTable(SampleTable, sampleRow{})

	total := 0
	for i := 0; i < count; i++ {
		s := &r.slots[i]
		for k := range s.samples {
			sm := &s.samples[k]
			rec.InsertData(SampleTable, sampleRow{
				ThreadIndex:        i,
				ThreadName:         s.name,
				ThreadID:           s.tid,
				Cat:                sm.Cat,
				Tag:                sm.Tag,
				Phase:              string(sm.Phase),
				WallTimeNS:         sm.WallTime,
				CPUTimeNS:          sm.CPUTime,
				PreemptiveSwitches: sm.PreemptiveSwitches,
				VoluntarySwitches:  sm.VoluntarySwitches,
			})
			total++
		}
	}

	rec.Flush()

	return total, nil
}
