package domain

// TranscodeState is the lifecycle state of a transcode job.
type TranscodeState string

const (
	TranscodeStatePending TranscodeState = "pending"
	TranscodeStateWorking TranscodeState = "working"
	TranscodeStateDone    TranscodeState = "done"
	TranscodeStateFailed  TranscodeState = "failed"
)

// TranscodeStatus describes the normalization state of one source
// container. The tuple (Source, MtimeMs) is the identity: a record
// whose MtimeMs no longer matches the source file on disk is stale and
// must be discarded by whoever reads it.
type TranscodeStatus struct {
	Source  string         `json:"source"`
	Target  string         `json:"target"`
	MtimeMs int64          `json:"mtime_ms"`
	State   TranscodeState `json:"state"`
	Error   *string        `json:"error,omitempty"`

	OutTimeMs  *int64   `json:"out_time_ms,omitempty"`
	Speed      *float64 `json:"speed,omitempty"`
	DurationMs *int64   `json:"duration_ms,omitempty"`

	// Meta is a snapshot of the Book fields needed to promote this
	// record into the Library Index once the worker finishes.
	Meta *BookMeta `json:"meta,omitempty"`
}

// BookMeta is the subset of Book fields known before normalization
// completes; the worker combines it with the output file's stat to
// build the final Book. AddedAt is deliberately absent: like the
// Library Index's own Book.AddedAt, it is always recomputed from
// filesystem times at promotion time, never carried as a snapshot.
type BookMeta struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	Author          string            `json:"author"`
	CoverPath       *string           `json:"cover_path,omitempty"`
	EpubPath        *string           `json:"epub_path,omitempty"`
	Description     *string           `json:"description,omitempty"`
	DescriptionHTML *string           `json:"description_html,omitempty"`
	Language        *string           `json:"language,omitempty"`
	ISBN            *string           `json:"isbn,omitempty"`
	Identifiers     map[string]string `json:"identifiers,omitempty"`
	Chapters        []ChapterTiming   `json:"chapters,omitempty"`
	PublishedAtUnix *int64            `json:"published_at_unix,omitempty"`
	DurationSeconds *float64          `json:"duration_seconds,omitempty"`
}

// Stale reports whether this status record no longer matches a source
// file observed at the given modification time.
func (t *TranscodeStatus) Stale(currentMtimeMs int64) bool {
	return t.MtimeMs != currentMtimeMs
}
