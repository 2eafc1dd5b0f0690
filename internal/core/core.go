// Package core wires the Library Index, the Transcode State Store, the
// Job Queue, the Probe Cache, and the Virtual Stream Assembler into the
// single surface the HTTP layer talks to, reducing its constructor to
// one struct rather than five separate dependencies.
package core

import (
	"net/http"
	"os"

	"github.com/podible/podible-server/internal/chaptertag"
	"github.com/podible/podible-server/internal/domain"
	"github.com/podible/podible-server/internal/library"
	"github.com/podible/podible-server/internal/probe"
	"github.com/podible/podible-server/internal/stream"
	"github.com/podible/podible-server/internal/transcode"
)

// Core is the ingestion-and-streaming pipeline's public surface.
type Core struct {
	Library   *library.Index
	Store     *transcode.Store
	Queue     *transcode.Queue
	Probe     *probe.Cache
	assembler *stream.Assembler
}

// New constructs a Core. The Assembler's chapter-tag encoder reads a
// multi Book's cover file lazily, once per request, rather than caching
// image bytes in memory.
func New(lib *library.Index, store *transcode.Store, queue *transcode.Queue, probeCache *probe.Cache) *Core {
	c := &Core{Library: lib, Store: store, Queue: queue, Probe: probeCache}
	c.assembler = stream.NewAssembler(c.encodeTag)
	return c
}

func (c *Core) encodeTag(book *domain.Book) []byte {
	var cover *chaptertag.Cover
	if book.CoverPath != nil {
		if data, err := os.ReadFile(*book.CoverPath); err == nil { //#nosec G304 -- path comes from a scanned Book, not user input
			cover = &chaptertag.Cover{MIME: sniffCoverMIME(*book.CoverPath), Data: data}
		}
	}
	return chaptertag.Encode(book.Chapters, cover)
}

func sniffCoverMIME(path string) string {
	if len(path) >= 4 && path[len(path)-4:] == ".png" {
		return "image/png"
	}
	return "image/jpeg"
}

// BooksSorted returns every streamable book for the book-listing
// endpoint, newest first. The feed endpoint uses FeedBooksSorted.
func (c *Core) BooksSorted() []domain.Book {
	return c.Library.BooksSorted()
}

// Find returns the book with the given id, if it is in the Library
// Index (i.e. streamable).
func (c *Core) Find(id string) (domain.Book, bool) {
	return c.Library.Find(id)
}

// FeedBooksSorted returns every streamable book plus every pending or
// in-progress single-container source as a "not yet streamable"
// placeholder entry, so operators can see a book queued for
// normalization before it is ready. Placeholders never shadow a book
// already present in the Library Index.
func (c *Core) FeedBooksSorted() []domain.Book {
	ready := c.Library.All()
	present := make(map[string]bool, len(ready))
	for _, b := range ready {
		present[b.ID] = true
	}

	out := append([]domain.Book{}, ready...)
	for _, status := range c.Store.All() {
		if status.Meta == nil {
			continue
		}
		if status.State != domain.TranscodeStatePending && status.State != domain.TranscodeStateWorking {
			continue
		}
		if present[status.Meta.ID] {
			continue
		}
		out = append(out, placeholderBook(&status))
	}

	sortBySortTimeDesc(out)
	return out
}

func placeholderBook(status *domain.TranscodeStatus) domain.Book {
	meta := status.Meta
	book := domain.Book{
		ID:              meta.ID,
		Title:           meta.Title,
		Author:          meta.Author,
		Kind:            domain.KindSingle,
		CoverPath:       meta.CoverPath,
		EpubPath:        meta.EpubPath,
		DurationSeconds: meta.DurationSeconds,
		Description:     meta.Description,
		DescriptionHTML: meta.DescriptionHTML,
		Language:        meta.Language,
		ISBN:            meta.ISBN,
		Identifiers:     meta.Identifiers,
		Chapters:        meta.Chapters,
	}
	if meta.PublishedAtUnix != nil {
		t := unixToTime(*meta.PublishedAtUnix)
		book.PublishedAt = &t
	}
	return book
}

// Stream serves r against book, writing the virtual object (chapter
// tag ‖ audio) or the requested byte range to w.
func (c *Core) Stream(w http.ResponseWriter, r *http.Request, book *domain.Book) error {
	return c.assembler.ServeHTTP(w, r, book)
}

// ChapterList is the feed-facing chapter table for a book: version
// "1.2.0" per the chapter-list JSON contract, empty for a single with
// no synthesized chapters.
type ChapterList struct {
	Version  string         `json:"version"`
	Chapters []ChapterEntry `json:"chapters"`
}

// ChapterEntry is one row of a ChapterList.
type ChapterEntry struct {
	StartTimeSeconds float64 `json:"start_time_seconds"`
	Title            string  `json:"title"`
}

// Chapters maps book's chapter timings into the feed-facing shape. A
// single with no chapters yields an empty list, not an error.
func (c *Core) Chapters(book *domain.Book) ChapterList {
	entries := make([]ChapterEntry, 0, len(book.Chapters))
	for _, ch := range book.Chapters {
		entries = append(entries, ChapterEntry{
			StartTimeSeconds: float64(ch.StartMs) / 1000,
			Title:            ch.Title,
		})
	}
	return ChapterList{Version: "1.2.0", Chapters: entries}
}

// Status is the operator status-page snapshot: queue depth, per-state
// counts, the active job's progress sample (if any job is currently
// working), and the probe failure list.
type Status struct {
	QueueDepth    int                            `json:"queue_depth"`
	CountsByState map[domain.TranscodeState]int  `json:"counts_by_state"`
	ActiveJob     *ActiveJobProgress             `json:"active_job,omitempty"`
	ProbeFailures map[string]string              `json:"probe_failures,omitempty"`
}

// ActiveJobProgress is the progress sample of whichever job is
// currently in the "working" state, if any.
type ActiveJobProgress struct {
	Source     string   `json:"source"`
	OutTimeMs  *int64   `json:"out_time_ms,omitempty"`
	Speed      *float64 `json:"speed,omitempty"`
	DurationMs *int64   `json:"duration_ms,omitempty"`
}

// StatusSnapshot assembles the Status page data in one call.
func (c *Core) StatusSnapshot() Status {
	st := Status{
		QueueDepth:    c.Queue.Depth(),
		CountsByState: c.Store.CountsByState(),
		ProbeFailures: c.Probe.Failures(),
	}
	for _, status := range c.Store.All() {
		if status.State == domain.TranscodeStateWorking {
			st.ActiveJob = &ActiveJobProgress{
				Source:     status.Source,
				OutTimeMs:  status.OutTimeMs,
				Speed:      status.Speed,
				DurationMs: status.DurationMs,
			}
			break
		}
	}
	return st
}
