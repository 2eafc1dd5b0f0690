// Package domain contains the core entities shared by the scanner, probe
// cache, transcode worker, library index, and stream assembler.
package domain

import "time"

// Kind distinguishes a Book whose audio lives in a single normalized
// container from one stitched virtually from an ordered set of parts.
type Kind string

const (
	KindSingle Kind = "single"
	KindMulti  Kind = "multi"
)

// MIME is the audio container type, derived from file extension.
type MIME string

const (
	MIMEMPEG MIME = "audio/mpeg"
	MIMEMP4  MIME = "audio/mp4"
)

// Book is a streamable audiobook, ready to appear in the feed and be
// served by the stream assembler.
//
// Exactly one of PrimaryFile (Kind == KindSingle) or Files (Kind ==
// KindMulti) is populated; the other is the zero value. This mirrors a
// sum type using a discriminant field rather than an interface, since
// every consumer (feed renderer, stream assembler) needs to branch on
// Kind anyway.
type Book struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Author string `json:"author"`
	Kind  Kind   `json:"kind"`
	MIME  MIME   `json:"mime"`

	// TotalSize is the audio size only; it excludes the synthesized
	// chapter-tag prefix.
	TotalSize int64 `json:"total_size"`

	// PrimaryFile is set when Kind == KindSingle.
	PrimaryFile *AudioSegment `json:"primary_file,omitempty"`
	// Files is set when Kind == KindMulti, ordered by Start offset.
	Files []AudioSegment `json:"files,omitempty"`

	CoverPath *string `json:"cover_path,omitempty"`
	EpubPath  *string `json:"epub_path,omitempty"`

	DurationSeconds *float64 `json:"duration_seconds,omitempty"`

	PublishedAt *time.Time `json:"published_at,omitempty"`
	AddedAt     *time.Time `json:"added_at,omitempty"`

	Description     *string           `json:"description,omitempty"`
	DescriptionHTML *string           `json:"description_html,omitempty"`
	Language        *string           `json:"language,omitempty"`
	ISBN            *string           `json:"isbn,omitempty"`
	Identifiers     map[string]string `json:"identifiers,omitempty"`

	// Chapters is mandatory for KindMulti, optional for KindSingle.
	Chapters []ChapterTiming `json:"chapters,omitempty"`
}

// AudioSegment is one physical audio file contributing to a Book's
// virtual stream. Start and End are inclusive byte offsets within the
// virtual concatenation of all of a multi book's parts; for a single
// book's PrimaryFile they are always [0, Size-1].
type AudioSegment struct {
	Path       string  `json:"path"`
	Name       string  `json:"name"`
	Size       int64   `json:"size"`
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
	DurationMs int64   `json:"duration_ms"`
	Title      *string `json:"title,omitempty"`
}

// ChapterTiming is a single entry in a Book's chapter table. ID follows
// the "ch{n}" convention (1-indexed) used by the chapter-tag encoder.
type ChapterTiming struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
}

// Streamable reports whether a Book is ready to be exposed in the feed:
// a single with an existing primary file, or a multi with at least one
// non-empty part.
func (b *Book) Streamable() bool {
	switch b.Kind {
	case KindSingle:
		return b.PrimaryFile != nil && b.PrimaryFile.Size > 0
	case KindMulti:
		for _, f := range b.Files {
			if f.Size > 0 {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// SortTime returns the timestamp used to order books for presentation:
// AddedAt, falling back to PublishedAt.
func (b *Book) SortTime() time.Time {
	if b.AddedAt != nil {
		return *b.AddedAt
	}
	if b.PublishedAt != nil {
		return *b.PublishedAt
	}
	return time.Time{}
}
