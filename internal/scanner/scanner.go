// Package scanner traverses configured library roots, classifies each
// book directory, extracts metadata and covers, and for each book
// either produces a ready Book for the Library Index or enqueues a
// transcode job.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/podible/podible-server/internal/domain"
	"github.com/podible/podible-server/internal/library"
	"github.com/podible/podible-server/internal/probe"
	"github.com/podible/podible-server/internal/transcode"
	"github.com/podible/podible-server/internal/util"
)

// Scanner ties the Probe Cache, Transcode State Store, Job Queue, and
// Library Index together to turn a set of root directories into
// streamable Books, per the contract in the component design: running
// Scan twice over an unchanged filesystem leaves state unchanged.
type Scanner struct {
	Roots   []string
	DataDir string

	Probe   *probe.Cache
	Store   *transcode.Store
	Queue   *transcode.Queue
	Library *library.Index

	Logger *slog.Logger

	// scanMu serializes concurrent Scan calls: a watcher-triggered
	// rescan overlapping an already-running scan waits for it rather
	// than racing it.
	scanMu sync.Mutex
}

// coverCacheDir is where extracted (not raw, in-directory) covers are
// cached, keyed by a hash of the source path plus its mtime.
func (s *Scanner) coverCacheDir() string {
	return filepath.Join(s.DataDir, "covers")
}

func (s *Scanner) transcodedDir() string {
	return filepath.Join(s.DataDir, "transcoded")
}

// Scan walks every configured root, builds the current book set, and
// atomically replaces the Library Index with it; books omitted from
// this run (their directory vanished or now fails classification) are
// evicted. Unreadable directories are logged and skipped, never
// aborting the scan.
func (s *Scanner) Scan(ctx context.Context) error {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	seen := make(map[string]domain.Book)

	for _, root := range s.Roots {
		dirs, errs := walkLibrary(root)
		for _, err := range errs {
			s.Logger.Warn("scan: unreadable directory", slog.String("root", root), slog.Any("error", err))
		}

		for _, dir := range dirs {
			book, err := s.scanTitleDir(ctx, dir)
			if err != nil {
				s.Logger.Warn("scan: skipping title directory", slog.String("path", dir.Path), slog.Any("error", err))
				continue
			}
			if book != nil {
				seen[book.ID] = *book
			}
		}
	}

	if err := s.Store.Save(); err != nil {
		s.Logger.Warn("scan: persist transcode store failed", slog.Any("error", err))
	}

	s.Library.ReplaceAll(seen)
	if err := s.Library.Save(); err != nil {
		return err
	}
	return nil
}

// scanTitleDir classifies one `<root>/<author>/<title>` directory and
// either returns a ready Book (nil if one was enqueued for transcoding
// instead, or if the directory is not a book at all), or an error for
// directories that are books but fatally broken.
func (s *Scanner) scanTitleDir(ctx context.Context, dir titleDir) (*domain.Book, error) {
	groups := classify(dir.Files)
	kind, ok := groups.bookKind()
	if !ok {
		return nil, nil
	}

	id := util.Slugify(dir.Author + "-" + dir.Title)

	var opf *ParsedOPF
	if groups.OPF != "" {
		parsed, err := parseOPF(groups.OPF)
		if err != nil {
			s.Logger.Warn("scan: opf parse failed", slog.String("path", groups.OPF), slog.Any("error", err))
		} else {
			opf = parsed
		}
	}

	if kind == "multi" {
		return s.buildMultiBook(ctx, dir, groups, opf, id)
	}
	return s.buildSingleBook(ctx, dir, groups, opf, id)
}

// buildMultiBook stitches the sorted .mp3 parts into one virtual Book.
// A part with zero size or unknown duration is fatal for the whole
// book: its own TranscodeStatus entry is marked failed (for operator
// visibility, even though multi parts are never queued for
// transcoding) and the book is skipped.
func (s *Scanner) buildMultiBook(ctx context.Context, dir titleDir, groups fileGroups, opf *ParsedOPF, id string) (*domain.Book, error) {
	var files []domain.AudioSegment
	var chapters []domain.ChapterTiming
	var firstTags map[string]string
	var cumByte, cumMs int64

	for i, partPath := range groups.Parts {
		info, err := os.Stat(partPath)
		if err != nil {
			return nil, err
		}
		mtimeMs := info.ModTime().UnixMilli()

		rec, probeErr := s.Probe.Probe(ctx, partPath, mtimeMs)
		var durationSeconds float64
		if probeErr == nil && rec.Duration != nil {
			durationSeconds = *rec.Duration
		}

		if info.Size() == 0 || durationSeconds <= 0 {
			msg := "zero size or unknown duration"
			if probeErr != nil {
				msg = probeErr.Error()
			}
			s.Store.PutNoSave(domain.TranscodeStatus{
				Source:  partPath,
				Target:  partPath,
				MtimeMs: mtimeMs,
				State:   domain.TranscodeStateFailed,
				Error:   &msg,
			})
			return nil, nil
		}

		if i == 0 {
			firstTags = rec.Tags
		}

		durationMs := int64(durationSeconds * 1000)
		size := info.Size()

		title := partTitle(rec.Tags, partPath, i)
		files = append(files, domain.AudioSegment{
			Path:       partPath,
			Name:       filepath.Base(partPath),
			Size:       size,
			Start:      cumByte,
			End:        cumByte + size - 1,
			DurationMs: durationMs,
			Title:      &title,
		})
		chapters = append(chapters, domain.ChapterTiming{
			ID:      chapterID(i),
			Title:   title,
			StartMs: cumMs,
			EndMs:   cumMs + durationMs,
		})

		cumByte += size
		cumMs += durationMs
	}

	meta := resolveMetadata(firstTags, opf, dir.Title, dir.Author)
	cover := resolveCover(ctx, groups, s.coverCacheDir())

	durationSeconds := float64(cumMs) / 1000
	book := &domain.Book{
		ID:              id,
		Title:           meta.Title,
		Author:          meta.Author,
		Kind:            domain.KindMulti,
		MIME:            rawMIME(groups.Parts[0]),
		TotalSize:       cumByte,
		Files:           files,
		DurationSeconds: &durationSeconds,
		Description:     strPtr(meta.Description),
		DescriptionHTML: strPtr(meta.DescriptionHTML),
		Language:        strPtr(meta.Language),
		Identifiers:     meta.Identifiers,
		Chapters:        chapters,
	}
	if cover != nil {
		book.CoverPath = &cover.Path
	}
	if len(groups.Epubs) > 0 {
		book.EpubPath = &groups.Epubs[0]
	}
	if isbn, ok := meta.Identifiers["isbn"]; ok {
		book.ISBN = &isbn
	}

	book.PublishedAt = resolvePublishedAt(meta.Date, dir.Path)
	book.AddedAt = util.ResolveAddedAt(dir.Path)

	return book, nil
}

// buildSingleBook handles the .m4b path: reuse an already-normalized
// output when the Transcode State Store already has a done, current
// record for it; otherwise ensure a pending record exists and the
// source is queued.
func (s *Scanner) buildSingleBook(ctx context.Context, dir titleDir, groups fileGroups, opf *ParsedOPF, id string) (*domain.Book, error) {
	source := groups.Containers[0]
	info, err := os.Stat(source)
	if err != nil {
		return nil, err
	}
	mtimeMs := info.ModTime().UnixMilli()

	rec, probeErr := s.Probe.Probe(ctx, source, mtimeMs)
	if probeErr != nil || rec.Duration == nil {
		msg := "duration unknown"
		if probeErr != nil {
			msg = probeErr.Error()
		}
		s.Store.PutNoSave(domain.TranscodeStatus{
			Source: source, Target: s.targetFor(id), MtimeMs: mtimeMs,
			State: domain.TranscodeStateFailed, Error: &msg,
		})
		return nil, nil
	}

	target := s.targetFor(id)

	if existing, ok := s.Store.Get(source); ok && !existing.Stale(mtimeMs) && existing.State == domain.TranscodeStateDone {
		if out, err := os.Stat(target); err == nil && out.Size() > 0 && existing.Meta != nil {
			return transcode.BuildBook(existing.Meta, target, out.Size(), util.ResolveAddedAt(dir.Path)), nil
		}
	}

	meta := resolveMetadata(rec.Tags, opf, dir.Title, dir.Author)
	cover := resolveCover(ctx, groups, s.coverCacheDir())
	chapters := s.Probe.Chapters(source, mtimeMs)

	bookMeta := &domain.BookMeta{
		ID:              id,
		Title:           meta.Title,
		Author:          meta.Author,
		Description:     strPtr(meta.Description),
		DescriptionHTML: strPtr(meta.DescriptionHTML),
		Language:        strPtr(meta.Language),
		Identifiers:     meta.Identifiers,
		Chapters:        chapters,
		DurationSeconds: rec.Duration,
	}
	if cover != nil {
		bookMeta.CoverPath = &cover.Path
	}
	if len(groups.Epubs) > 0 {
		bookMeta.EpubPath = &groups.Epubs[0]
	}
	if isbn, ok := meta.Identifiers["isbn"]; ok {
		bookMeta.ISBN = &isbn
	}
	if published := resolvePublishedAt(meta.Date, dir.Path); published != nil {
		unix := published.Unix()
		bookMeta.PublishedAtUnix = &unix
	}

	// Preserve an earlier error iff the mtime is unchanged.
	var prevErr *string
	if existing, ok := s.Store.Get(source); ok && !existing.Stale(mtimeMs) {
		prevErr = existing.Error
	}

	s.Store.PutNoSave(domain.TranscodeStatus{
		Source:  source,
		Target:  target,
		MtimeMs: mtimeMs,
		State:   domain.TranscodeStatePending,
		Error:   prevErr,
		Meta:    bookMeta,
	})

	if !s.Queue.IsActive(source) {
		var coverRef *transcode.CoverRef
		if cover != nil {
			coverRef = &transcode.CoverRef{Path: cover.Path, MIME: cover.MIME}
		}
		s.Queue.Push(transcode.Job{
			Source:  source,
			Target:  target,
			MtimeMs: mtimeMs,
			Cover:   coverRef,
			Meta:    bookMeta,
		})
	}

	return nil, nil
}

func (s *Scanner) targetFor(id string) string {
	return filepath.Join(s.transcodedDir(), id+".mp3")
}

func partTitle(tags map[string]string, path string, index int) string {
	if t := present(util.CaseInsensitiveMap(tags).First("title")); t != "" {
		return t
	}
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

func chapterID(index int) string {
	return fmt.Sprintf("ch%d", index+1)
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// resolvePublishedAt parses dateStr, which resolveMetadata has already
// chosen with audio-then-opf precedence, and falls back to the title
// directory's mtime when it is empty or unparseable. An opf date does
// not take precedence over an audio date here, and the audio source
// file's own mtime is not consulted.
func resolvePublishedAt(dateStr, dirPath string) *time.Time {
	if dateStr != "" {
		if t := parseFlexibleDate(dateStr); t != nil {
			return t
		}
	}
	if info, err := os.Stat(dirPath); err == nil {
		t := info.ModTime()
		return &t
	}
	return nil
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01",
	"2006",
}

func parseFlexibleDate(s string) *time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
