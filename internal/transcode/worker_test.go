package transcode

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/podible/podible-server/internal/domain"
)

type fakeConverter struct {
	err      error
	progress []ProgressFunc
}

func (f *fakeConverter) Convert(_ context.Context, _, target string, _ *CoverRef, onProgress ProgressFunc) error {
	if onProgress != nil {
		t0 := int64(1000)
		onProgress(&t0, nil)
	}
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(target, []byte("fake mp3 data"), 0o644)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWorkerProcessSuccess(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "book.m4b")
	target := filepath.Join(dir, "book.mp3")
	if err := os.WriteFile(source, []byte("source"), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := NewStore(filepath.Join(dir, "transcode-status.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.Put(domain.TranscodeStatus{Source: source, Target: target, MtimeMs: 42, State: domain.TranscodeStatePending}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	queue := NewQueue()
	var promoted *domain.Book
	worker := NewWorker(queue, store, &fakeConverter{}, newTestLogger())
	worker.Promote = func(b *domain.Book) { promoted = b }

	dur := 10.0
	worker.process(context.Background(), Job{
		Source:  source,
		Target:  target,
		MtimeMs: 42,
		Meta:    &domain.BookMeta{ID: "author-book", Title: "Book", Author: "Author", DurationSeconds: &dur},
	})

	status, ok := store.Get(source)
	if !ok {
		t.Fatal("expected status to exist")
	}
	if status.State != domain.TranscodeStateDone {
		t.Errorf("State = %q, want done", status.State)
	}
	if promoted == nil {
		t.Fatal("expected Promote to be called")
	}
	if promoted.ID != "author-book" || promoted.Kind != domain.KindSingle {
		t.Errorf("promoted book = %+v", promoted)
	}
	if promoted.PrimaryFile == nil || promoted.PrimaryFile.Size != int64(len("fake mp3 data")) {
		t.Errorf("promoted.PrimaryFile = %+v", promoted.PrimaryFile)
	}
}

func TestWorkerProcessFailure(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "book.m4b")
	target := filepath.Join(dir, "book.mp3")

	store, err := NewStore(filepath.Join(dir, "transcode-status.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.Put(domain.TranscodeStatus{Source: source, Target: target, MtimeMs: 1, State: domain.TranscodeStatePending}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	queue := NewQueue()
	var promoted *domain.Book
	worker := NewWorker(queue, store, &fakeConverter{err: errors.New("ffmpeg exploded")}, newTestLogger())
	worker.Promote = func(b *domain.Book) { promoted = b }

	worker.process(context.Background(), Job{Source: source, Target: target, MtimeMs: 1})

	status, _ := store.Get(source)
	if status.State != domain.TranscodeStateFailed {
		t.Errorf("State = %q, want failed", status.State)
	}
	if status.Error == nil || *status.Error != "ffmpeg exploded" {
		t.Errorf("Error = %v, want ffmpeg exploded", status.Error)
	}
	if promoted != nil {
		t.Error("Promote should not be called on failure")
	}
}

func TestWorkerDropsStaleJob(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "book.m4b")

	store, err := NewStore(filepath.Join(dir, "transcode-status.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.Put(domain.TranscodeStatus{Source: source, MtimeMs: 100, State: domain.TranscodeStatePending}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	queue := NewQueue()
	converter := &fakeConverter{}
	worker := NewWorker(queue, store, converter, newTestLogger())

	// Job carries a stale mtime (99 != stored 100).
	worker.process(context.Background(), Job{Source: source, MtimeMs: 99})

	status, _ := store.Get(source)
	if status.State != domain.TranscodeStatePending {
		t.Errorf("stale job should not have mutated state, got %q", status.State)
	}
}

func TestQueuePushPopBlocks(t *testing.T) {
	q := NewQueue()

	done := make(chan Job, 1)
	go func() {
		done <- q.Pop()
	}()

	select {
	case <-done:
		t.Fatal("Pop should block until a job is pushed")
	case <-time.After(50 * time.Millisecond):
	}

	q.Push(Job{Source: "/a.m4b"})

	select {
	case job := <-done:
		if job.Source != "/a.m4b" {
			t.Errorf("job.Source = %q, want /a.m4b", job.Source)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after Push")
	}
}

func TestQueueDedupesActiveSource(t *testing.T) {
	q := NewQueue()
	q.Push(Job{Source: "/a.m4b"})
	q.Push(Job{Source: "/a.m4b"})

	if q.Depth() != 1 {
		t.Errorf("Depth() = %d, want 1 (duplicate source should be deduped)", q.Depth())
	}

	if !q.IsActive("/a.m4b") {
		t.Error("IsActive should be true for a queued source")
	}

	q.Pop()
	q.Done("/a.m4b")
	if q.IsActive("/a.m4b") {
		t.Error("IsActive should be false after Done")
	}
}
