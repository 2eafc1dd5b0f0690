package scanner

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/podible/podible-server/internal/domain"
)

// fileGroups is the result of classifying one title directory's files by
// extension. Each slice is sorted lexicographically by path, case-insensitive
// on extension.
type fileGroups struct {
	Containers []string // .m4b
	Parts      []string // .mp3
	Covers     []string // .png, .jpg, .jpeg
	Epubs      []string // .epub
	OPF        string   // first .opf, if any
}

func classify(files []string) fileGroups {
	var g fileGroups
	var opfs []string

	for _, f := range files {
		switch strings.ToLower(filepath.Ext(f)) {
		case ".m4b":
			g.Containers = append(g.Containers, f)
		case ".mp3":
			g.Parts = append(g.Parts, f)
		case ".png", ".jpg", ".jpeg":
			g.Covers = append(g.Covers, f)
		case ".epub":
			g.Epubs = append(g.Epubs, f)
		case ".opf":
			opfs = append(opfs, f)
		}
	}

	sort.Strings(g.Containers)
	sort.Strings(g.Parts)
	sort.Strings(g.Covers)
	sort.Strings(g.Epubs)
	sort.Strings(opfs)
	if len(opfs) > 0 {
		g.OPF = opfs[0]
	}

	return g
}

// bookKind is the decisive single/multi classification: an .m4b wins
// over any number of .mp3 parts, and a directory with neither is not a
// book at all.
func (g fileGroups) bookKind() (kind string, ok bool) {
	switch {
	case len(g.Containers) > 0:
		return "single", true
	case len(g.Parts) > 0:
		return "multi", true
	default:
		return "", false
	}
}

// rawMIME derives the audio MIME type from a file extension.
func rawMIME(path string) domain.MIME {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return domain.MIMEMPEG
	case ".m4a", ".m4b", ".mp4":
		return domain.MIMEMP4
	default:
		return ""
	}
}
