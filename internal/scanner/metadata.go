package scanner

import (
	"strings"

	"github.com/podible/podible-server/internal/util"
)

// resolvedMetadata is the outcome of the metadata resolution precedence
// rules, ready to populate a Book or BookMeta.
type resolvedMetadata struct {
	Title           string
	Author          string
	Description     string
	DescriptionHTML string
	Language        string
	Date            string
	Identifiers     map[string]string
}

// absentValue reports whether a tag value should be treated as not
// present at all: empty after trimming, or one of the placeholder
// strings some taggers write instead of leaving a field blank.
func absentValue(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return true
	}
	lower := strings.ToLower(v)
	return lower == "unknown" || lower == "no description"
}

func present(v string) string {
	if absentValue(v) {
		return ""
	}
	return strings.TrimSpace(v)
}

// resolveMetadata applies the title/author/description/language/date
// resolution precedence: audio tags first for author/language/date,
// opf as the fallback, folder name as the final fallback for
// title/author.
func resolveMetadata(audioTags map[string]string, opf *ParsedOPF, folderTitle, folderAuthor string) resolvedMetadata {
	tags := util.CaseInsensitiveMap(audioTags)
	if tags == nil {
		tags = util.CaseInsensitiveMap{}
	}

	out := resolvedMetadata{Identifiers: make(map[string]string)}

	// Title: opf-title, else folder name.
	if opf != nil && present(opf.Title) != "" {
		out.Title = present(opf.Title)
	} else {
		out.Title = folderTitle
	}

	// Author: audio artist, else audio album_artist, else opf-creator,
	// else folder name.
	switch {
	case present(tags.First("artist")) != "":
		out.Author = present(tags.First("artist"))
	case present(tags.First("album_artist")) != "":
		out.Author = present(tags.First("album_artist"))
	case opf != nil && present(opf.Creator) != "":
		out.Author = present(opf.Creator)
	default:
		out.Author = folderAuthor
	}

	// Description: the longer of opf-description and audio-description.
	audioDesc := present(tags.First("description", "comment"))
	opfDesc := ""
	opfDescHTML := ""
	if opf != nil {
		opfDesc = present(opf.DescriptionText)
		opfDescHTML = present(opf.DescriptionHTML)
	}
	if len(opfDesc) >= len(audioDesc) {
		out.Description = opfDesc
		out.DescriptionHTML = opfDescHTML
	} else {
		out.Description = audioDesc
	}

	// Language: audio where present, else opf.
	if v := present(tags.First("language", "lang")); v != "" {
		out.Language = v
	} else if opf != nil {
		out.Language = present(opf.Language)
	}

	// Date: audio where present, else opf.
	if v := present(tags.First("date", "year")); v != "" {
		out.Date = v
	} else if opf != nil {
		out.Date = present(opf.Date)
	}

	if opf != nil {
		for scheme, value := range opf.Identifiers {
			out.Identifiers[scheme] = value
		}
	}

	return out
}
