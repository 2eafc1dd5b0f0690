// Package probe provides a content-addressable (path + mtime) cache of
// audio probe results, backed by an external probe Engine and persisted
// to disk so repeated scans never re-probe unchanged files.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/podible/podible-server/internal/domain"
)

// persistedEntry is the on-disk shape of one cache row: "a JSON array of
// { file, mtime_ms, data|null, error? }".
type persistedEntry struct {
	File    string             `json:"file"`
	MtimeMs int64              `json:"mtime_ms"`
	Data    *persistedProbeData `json:"data"`
	Error   *string            `json:"error,omitempty"`
}

type persistedProbeData struct {
	Duration *float64                `json:"duration,omitempty"`
	Tags     map[string]string       `json:"tags,omitempty"`
	Chapters []domain.ProbeChapter   `json:"chapters,omitempty"`
}

// Cache is the Probe Cache: a persistent memo of probe(path, mtime_ms).
type Cache struct {
	engine   Engine
	filePath string

	mu      sync.Mutex
	records map[string]domain.ProbeRecord
}

// New constructs a Cache backed by engine, loading any existing
// persisted state from filePath. A missing file is not an error.
func New(engine Engine, filePath string) (*Cache, error) {
	c := &Cache{
		engine:   engine,
		filePath: filePath,
		records:  make(map[string]domain.ProbeRecord),
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) load() error {
	data, err := os.ReadFile(c.filePath) //#nosec G304 -- path is server-configured data dir
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("probe cache: read %s: %w", c.filePath, err)
	}
	if len(data) == 0 {
		return nil
	}

	var entries []persistedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("probe cache: parse %s: %w", c.filePath, err)
	}

	for _, e := range entries {
		c.records[e.File] = fromPersisted(e)
	}
	return nil
}

func fromPersisted(e persistedEntry) domain.ProbeRecord {
	rec := domain.ProbeRecord{MtimeMs: e.MtimeMs, Error: e.Error}
	if e.Data != nil {
		rec.Duration = e.Data.Duration
		rec.Tags = e.Data.Tags
		rec.Chapters = e.Data.Chapters
	}
	return rec
}

func toPersisted(file string, rec domain.ProbeRecord) persistedEntry {
	e := persistedEntry{File: file, MtimeMs: rec.MtimeMs, Error: rec.Error}
	if rec.Duration != nil || rec.Tags != nil || rec.Chapters != nil {
		e.Data = &persistedProbeData{
			Duration: rec.Duration,
			Tags:     rec.Tags,
			Chapters: rec.Chapters,
		}
	}
	return e
}

// save persists the full record set atomically: write to a temp file in
// the same directory, then rename into place.
func (c *Cache) save() error {
	entries := make([]persistedEntry, 0, len(c.records))
	for file, rec := range c.records {
		entries = append(entries, toPersisted(file, rec))
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("probe cache: marshal: %w", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("probe cache: mkdir %s: %w", dir, err)
	}

	tmpPath := c.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil { //#nosec G306 -- probe cache is not sensitive
		return fmt.Errorf("probe cache: write %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, c.filePath); err != nil {
		return fmt.Errorf("probe cache: rename %s: %w", tmpPath, err)
	}
	return nil
}

// Probe returns the cached ProbeRecord for path if its stored mtime
// matches mtimeMs; otherwise it invokes the Engine, persists the result
// (success or failure), and returns it. Probe failures are cached, so a
// file that fails to probe is not re-probed on every call.
func (c *Cache) Probe(ctx context.Context, path string, mtimeMs int64) (*domain.ProbeRecord, error) {
	c.mu.Lock()
	if rec, ok := c.records[path]; ok && rec.MtimeMs == mtimeMs {
		c.mu.Unlock()
		return &rec, nil
	}
	c.mu.Unlock()

	duration, tags, chapters, probeErr := c.engine.Probe(ctx, path)

	rec := domain.ProbeRecord{MtimeMs: mtimeMs}
	if probeErr != nil {
		msg := probeErr.Error()
		rec.Error = &msg
	} else {
		rec.Duration = duration
		rec.Tags = tags
		rec.Chapters = chapters
	}

	c.mu.Lock()
	c.records[path] = rec
	saveErr := c.save()
	c.mu.Unlock()

	if saveErr != nil {
		return &rec, saveErr
	}
	return &rec, nil
}

// Duration returns the cached duration in seconds for path at mtimeMs,
// or nil if unknown or stale.
func (c *Cache) Duration(path string, mtimeMs int64) *float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[path]
	if !ok || rec.MtimeMs != mtimeMs {
		return nil
	}
	return rec.Duration
}

// Chapters maps the cached chapter list for path at mtimeMs into
// ChapterTimings using 1000x rounded millisecond conversions. Chapters
// with no title get a synthesized "Chapter {n}" name. Returns nil if
// the record is absent, stale, or has no chapters.
func (c *Cache) Chapters(path string, mtimeMs int64) []domain.ChapterTiming {
	c.mu.Lock()
	rec, ok := c.records[path]
	c.mu.Unlock()
	if !ok || rec.MtimeMs != mtimeMs || len(rec.Chapters) == 0 {
		return nil
	}

	out := make([]domain.ChapterTiming, 0, len(rec.Chapters))
	for i, ch := range rec.Chapters {
		title := ch.Tags["title"]
		if title == "" {
			title = fmt.Sprintf("Chapter %d", i+1)
		}
		out = append(out, domain.ChapterTiming{
			ID:      fmt.Sprintf("ch%d", i+1),
			Title:   title,
			StartMs: int64(math.Round(ch.StartTime * 1000)),
			EndMs:   int64(math.Round(ch.EndTime * 1000)),
		})
	}
	return out
}

// Failures lists every cache entry whose stored data is absent and
// whose error text is non-empty, keyed by path, for operator display.
func (c *Cache) Failures() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]string)
	for path, rec := range c.records {
		if rec.Failed() {
			out[path] = *rec.Error
		}
	}
	return out
}
