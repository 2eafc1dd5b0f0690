package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/podible/podible-server/internal/domain"
)

// Engine probes a single audio file for format duration, container-level
// tags, and embedded chapters. Implementations are free to shell out to
// an external tool; the cache in this package is what makes repeated
// probes cheap.
type Engine interface {
	Probe(ctx context.Context, path string) (duration *float64, tags map[string]string, chapters []domain.ProbeChapter, err error)
}

// FFProbeEngine shells out to the system ffprobe binary, using the same
// JSON-shape and tag-mapping conventions as other ffprobe-based probers.
type FFProbeEngine struct {
	// BinPath overrides the ffprobe executable name, for testing.
	BinPath string
}

// NewFFProbeEngine returns an Engine backed by the "ffprobe" binary on PATH.
func NewFFProbeEngine() *FFProbeEngine {
	return &FFProbeEngine{BinPath: "ffprobe"}
}

func (e *FFProbeEngine) binPath() string {
	if e.BinPath != "" {
		return e.BinPath
	}
	return "ffprobe"
}

func (e *FFProbeEngine) Probe(ctx context.Context, path string) (*float64, map[string]string, []domain.ProbeChapter, error) {
	cmd := exec.CommandContext(ctx, e.binPath(),
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_chapters",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("ffprobe: %w", err)
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, nil, nil, fmt.Errorf("ffprobe: parse output: %w", err)
	}

	var duration *float64
	if parsed.Format.Duration != "" {
		if d, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
			duration = &d
		}
	}

	tags := parsed.Format.Tags
	chapters := make([]domain.ProbeChapter, 0, len(parsed.Chapters))
	for _, c := range parsed.Chapters {
		var ch domain.ProbeChapter
		if c.StartTime != "" {
			if v, err := strconv.ParseFloat(c.StartTime, 64); err == nil {
				ch.StartTime = v
			}
		}
		if c.EndTime != "" {
			if v, err := strconv.ParseFloat(c.EndTime, 64); err == nil {
				ch.EndTime = v
			}
		}
		ch.Tags = c.Tags
		chapters = append(chapters, ch)
	}

	return duration, tags, chapters, nil
}

type ffprobeOutput struct {
	Format   ffprobeFormat    `json:"format"`
	Chapters []ffprobeChapter `json:"chapters"`
}

type ffprobeFormat struct {
	Tags     map[string]string `json:"tags"`
	Duration string            `json:"duration"`
}

type ffprobeChapter struct {
	Tags      map[string]string `json:"tags"`
	StartTime string            `json:"start_time"`
	EndTime   string            `json:"end_time"`
}
