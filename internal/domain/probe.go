package domain

// ProbeChapter is one chapter entry as reported by the probe engine,
// before conversion into a ChapterTiming.
type ProbeChapter struct {
	StartTime float64           `json:"start_time"`
	EndTime   float64           `json:"end_time"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// ProbeRecord is the cached result of probing one audio file, keyed by
// path in the Probe Cache.
type ProbeRecord struct {
	MtimeMs  int64             `json:"mtime_ms"`
	Duration *float64          `json:"duration,omitempty"`
	Tags     map[string]string `json:"tags,omitempty"`
	Chapters []ProbeChapter    `json:"chapters,omitempty"`
	Error    *string           `json:"error,omitempty"`
}

// Failed reports whether this record represents a probe failure: no
// duration and a non-empty error.
func (r *ProbeRecord) Failed() bool {
	return r.Duration == nil && r.Error != nil && *r.Error != ""
}
