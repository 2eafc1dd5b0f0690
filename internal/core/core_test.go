package core

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/podible/podible-server/internal/domain"
	"github.com/podible/podible-server/internal/library"
	"github.com/podible/podible-server/internal/probe"
	"github.com/podible/podible-server/internal/transcode"
)

type noopEngine struct{}

func (noopEngine) Probe(_ context.Context, _ string) (*float64, map[string]string, []domain.ProbeChapter, error) {
	return nil, nil, nil, nil
}

func newTestCore(t *testing.T) *Core {
	t.Helper()
	dir := t.TempDir()

	lib, err := library.New(filepath.Join(dir, "library.json"))
	if err != nil {
		t.Fatal(err)
	}
	store, err := transcode.NewStore(filepath.Join(dir, "transcode.json"))
	if err != nil {
		t.Fatal(err)
	}
	probeCache, err := probe.New(noopEngine{}, filepath.Join(dir, "probe.json"))
	if err != nil {
		t.Fatal(err)
	}

	return New(lib, store, transcode.NewQueue(), probeCache)
}

func readyBook(id string) domain.Book {
	size := int64(1000)
	return domain.Book{
		ID:     id,
		Title:  "Ready Book",
		Author: "Author",
		Kind:   domain.KindSingle,
		MIME:   domain.MIMEMPEG,
		PrimaryFile: &domain.AudioSegment{
			Path: "/tmp/does-not-matter.mp3", Size: size, Start: 0, End: size - 1,
		},
		TotalSize: size,
	}
}

func TestFindAndBooksSortedReflectLibrary(t *testing.T) {
	c := newTestCore(t)
	c.Library.Put(readyBook("book-a"))

	if _, ok := c.Find("missing"); ok {
		t.Error("Find(missing) = ok, want not found")
	}
	b, ok := c.Find("book-a")
	if !ok || b.Title != "Ready Book" {
		t.Errorf("Find(book-a) = %+v, %v", b, ok)
	}

	if len(c.BooksSorted()) != 1 {
		t.Errorf("len(BooksSorted()) = %d, want 1", len(c.BooksSorted()))
	}
}

func TestFeedBooksSortedMergesPendingPlaceholders(t *testing.T) {
	c := newTestCore(t)
	c.Library.Put(readyBook("book-ready"))

	if err := c.Store.Put(domain.TranscodeStatus{
		Source:  "/library/author/title/book.m4b",
		Target:  "/data/transcoded/book-pending.mp3",
		MtimeMs: 1,
		State:   domain.TranscodeStatePending,
		Meta:    &domain.BookMeta{ID: "book-pending", Title: "Pending Book", Author: "Author"},
	}); err != nil {
		t.Fatal(err)
	}

	feed := c.FeedBooksSorted()
	if len(feed) != 2 {
		t.Fatalf("len(FeedBooksSorted()) = %d, want 2", len(feed))
	}

	var sawPending bool
	for _, b := range feed {
		if b.ID == "book-pending" {
			sawPending = true
			if b.Streamable() {
				t.Error("pending placeholder should not be streamable")
			}
		}
	}
	if !sawPending {
		t.Error("FeedBooksSorted() missing the pending placeholder entry")
	}

	if len(c.BooksSorted()) != 1 {
		t.Errorf("BooksSorted() should still exclude the pending placeholder, got %d", len(c.BooksSorted()))
	}
}

func TestFeedBooksSortedOmitsPendingOnceReady(t *testing.T) {
	c := newTestCore(t)
	c.Library.Put(readyBook("book-a"))

	if err := c.Store.Put(domain.TranscodeStatus{
		Source: "/library/author/title/book.m4b", Target: "/data/transcoded/book-a.mp3",
		MtimeMs: 1, State: domain.TranscodeStateDone,
		Meta: &domain.BookMeta{ID: "book-a", Title: "Ready Book", Author: "Author"},
	}); err != nil {
		t.Fatal(err)
	}

	feed := c.FeedBooksSorted()
	if len(feed) != 1 {
		t.Fatalf("len(FeedBooksSorted()) = %d, want 1 (done status shouldn't duplicate the ready book)", len(feed))
	}
}

func TestChaptersMapsTimingsAndHandlesEmpty(t *testing.T) {
	c := newTestCore(t)

	single := readyBook("book-a")
	if list := c.Chapters(&single); len(list.Chapters) != 0 || list.Version != "1.2.0" {
		t.Errorf("Chapters(single with none) = %+v, want empty list with version 1.2.0", list)
	}

	multi := readyBook("book-b")
	multi.Chapters = []domain.ChapterTiming{
		{ID: "ch1", Title: "Part One", StartMs: 0, EndMs: 1500},
		{ID: "ch2", Title: "Part Two", StartMs: 1500, EndMs: 3000},
	}
	list := c.Chapters(&multi)
	if len(list.Chapters) != 2 {
		t.Fatalf("len(Chapters) = %d, want 2", len(list.Chapters))
	}
	if list.Chapters[0].StartTimeSeconds != 0 || list.Chapters[1].StartTimeSeconds != 1.5 {
		t.Errorf("StartTimeSeconds = [%v, %v], want [0, 1.5]", list.Chapters[0].StartTimeSeconds, list.Chapters[1].StartTimeSeconds)
	}
}

func TestStatusSnapshotReportsQueueAndActiveJob(t *testing.T) {
	c := newTestCore(t)

	outTime := int64(5000)
	if err := c.Store.Put(domain.TranscodeStatus{
		Source: "/library/a/b/book.m4b", Target: "/data/transcoded/x.mp3",
		MtimeMs: 1, State: domain.TranscodeStateWorking, OutTimeMs: &outTime,
	}); err != nil {
		t.Fatal(err)
	}

	snap := c.StatusSnapshot()
	if snap.ActiveJob == nil || snap.ActiveJob.Source != "/library/a/b/book.m4b" {
		t.Fatalf("ActiveJob = %+v, want a sample for the working job", snap.ActiveJob)
	}
	if snap.CountsByState[domain.TranscodeStateWorking] != 1 {
		t.Errorf("CountsByState[working] = %d, want 1", snap.CountsByState[domain.TranscodeStateWorking])
	}
}

func TestStreamDelegatesToAssembler(t *testing.T) {
	c := newTestCore(t)

	data := []byte("hello world")
	path := filepath.Join(t.TempDir(), "book.mp3")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	book := domain.Book{
		ID: "book-a", Kind: domain.KindSingle, MIME: domain.MIMEMPEG,
		PrimaryFile: &domain.AudioSegment{Path: path, Size: int64(len(data)), Start: 0, End: int64(len(data)) - 1},
		TotalSize:   int64(len(data)),
	}

	req := httptest.NewRequest(http.MethodGet, "/stream/book-a", nil)
	rec := httptest.NewRecorder()
	if err := c.Stream(rec, req, &book); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != string(data) {
		t.Errorf("body = %q, want %q", rec.Body.String(), string(data))
	}
}
