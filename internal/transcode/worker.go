package transcode

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/podible/podible-server/internal/domain"
	"github.com/podible/podible-server/internal/util"
)

// Worker consumes the Job Queue forever, one job at a time. It is the
// only writer of Converter outputs and the only mutator of a job's
// TranscodeStatus once it has left the "pending" state.
type Worker struct {
	queue     *Queue
	store     *Store
	converter Converter
	logger    *slog.Logger

	// Promote installs a completed Book into the Library Index. Passed
	// as a callback rather than an import of the library package to
	// avoid a dependency cycle (library depends on transcode's domain
	// types, not the other way around).
	Promote func(book *domain.Book)

	persistLimiter *rate.Limiter
	logLimiter     *rate.Limiter
}

// NewWorker constructs a Worker. Promote must be set before Run is
// called.
func NewWorker(queue *Queue, store *Store, converter Converter, logger *slog.Logger) *Worker {
	return &Worker{
		queue:     queue,
		store:     store,
		converter: converter,
		logger:    logger,
		// Persistence is throttled to roughly every 2s; logging to
		// roughly every 1.5s.
		persistLimiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
		logLimiter:     rate.NewLimiter(rate.Every(1500*time.Millisecond), 1),
	}
}

// Run processes jobs until ctx is cancelled. Cancellation is checked
// only before each Pop: a Run blocked on an empty queue stays blocked
// until the next job arrives.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		job := w.queue.Pop()
		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job Job) {
	defer w.queue.Done(job.Source)
	log := w.logger.With(slog.String("job_id", job.JobID))

	status, ok := w.store.Get(job.Source)
	if !ok || status.Stale(job.MtimeMs) {
		log.Debug("dropping stale transcode job", slog.String("source", job.Source))
		return
	}

	status.State = domain.TranscodeStateWorking
	status.Error = nil
	if job.Meta != nil && job.Meta.DurationSeconds != nil {
		ms := int64(*job.Meta.DurationSeconds * 1000)
		status.DurationMs = &ms
	}
	status.Meta = job.Meta
	if err := w.store.Put(status); err != nil {
		log.Warn("persist working state failed", slog.String("source", job.Source), slog.Any("error", err))
	}

	lastLoggedMs := int64(-1)
	onProgress := func(outTimeMs *int64, speed *float64) {
		w.handleProgress(log, job.Source, outTimeMs, speed, &lastLoggedMs)
	}

	convertErr := w.converter.Convert(ctx, job.Source, job.Target, job.Cover, onProgress)

	status, _ = w.store.Get(job.Source)
	if convertErr != nil {
		errMsg := convertErr.Error()
		status.State = domain.TranscodeStateFailed
		status.Error = &errMsg
		if err := w.store.Put(status); err != nil {
			log.Warn("persist failed state failed", slog.String("source", job.Source), slog.Any("error", err))
		}
		log.Warn("transcode failed", slog.String("source", job.Source), slog.Any("error", convertErr))
		return
	}

	if err := stampMtime(job.Target, job.MtimeMs); err != nil {
		log.Warn("stamp output mtime failed", slog.String("target", job.Target), slog.Any("error", err))
	}

	info, statErr := os.Stat(job.Target)
	if statErr != nil {
		errMsg := statErr.Error()
		status.State = domain.TranscodeStateFailed
		status.Error = &errMsg
		_ = w.store.Put(status)
		log.Warn("stat output failed", slog.String("target", job.Target), slog.Any("error", statErr))
		return
	}

	status.State = domain.TranscodeStateDone
	status.Error = nil
	if err := w.store.Put(status); err != nil {
		log.Warn("persist done state failed", slog.String("source", job.Source), slog.Any("error", err))
	}

	if w.Promote != nil && job.Meta != nil {
		addedAt := util.ResolveAddedAt(filepath.Dir(job.Source))
		w.Promote(BuildBook(job.Meta, job.Target, info.Size(), addedAt))
	}
}

func (w *Worker) handleProgress(log *slog.Logger, source string, outTimeMs *int64, speed *float64, lastLoggedMs *int64) {
	status, ok := w.store.Get(source)
	if !ok {
		return
	}
	status.OutTimeMs = outTimeMs
	status.Speed = speed

	if w.persistLimiter.Allow() {
		if err := w.store.Put(status); err != nil {
			log.Warn("persist progress failed", slog.String("source", source), slog.Any("error", err))
		}
	}

	if outTimeMs == nil {
		return
	}
	if *lastLoggedMs >= 0 && *outTimeMs-*lastLoggedMs < 5000 {
		return
	}
	if !w.logLimiter.Allow() {
		return
	}
	*lastLoggedMs = *outTimeMs

	fields := []any{slog.String("source", source), slog.Int64("out_time_ms", *outTimeMs)}
	if speed != nil {
		fields = append(fields, slog.Float64("speed", *speed))
	}
	log.Info("transcode progress", fields...)
}

// stampMtime sets target's modification time to mtimeMs, so the
// persistent (source, mtime) identity check still holds after the
// output round-trips through the filesystem.
func stampMtime(target string, mtimeMs int64) error {
	t := time.UnixMilli(mtimeMs)
	return os.Chtimes(target, t, t)
}

// BuildBook assembles a ready single-kind Book from a transcode job's
// metadata snapshot and its finished output file, shared by the Worker
// (on fresh completion) and the Scanner (when reusing an already-done
// target across a rescan). addedAt is resolved by the caller from the
// title directory's filesystem times, since neither the job metadata
// snapshot nor the output file's own stat carries it.
func BuildBook(meta *domain.BookMeta, target string, size int64, addedAt *time.Time) *domain.Book {
	var durationSeconds *float64
	if meta.DurationSeconds != nil {
		durationSeconds = meta.DurationSeconds
	}

	var publishedAt *time.Time
	if meta.PublishedAtUnix != nil {
		t := time.Unix(*meta.PublishedAtUnix, 0).UTC()
		publishedAt = &t
	}

	return &domain.Book{
		ID:              meta.ID,
		Title:           meta.Title,
		Author:          meta.Author,
		Kind:            domain.KindSingle,
		MIME:            domain.MIMEMPEG,
		TotalSize:       size,
		PrimaryFile:     &domain.AudioSegment{Path: target, Name: fmt.Sprintf("%s.mp3", meta.ID), Size: size, Start: 0, End: size - 1},
		CoverPath:       meta.CoverPath,
		EpubPath:        meta.EpubPath,
		DurationSeconds: durationSeconds,
		PublishedAt:     publishedAt,
		AddedAt:         addedAt,
		Description:     meta.Description,
		DescriptionHTML: meta.DescriptionHTML,
		Language:        meta.Language,
		ISBN:            meta.ISBN,
		Identifiers:     meta.Identifiers,
		Chapters:        meta.Chapters,
	}
}
