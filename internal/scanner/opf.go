package scanner

import (
	"encoding/xml"
	"os"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// opfMetadata is the subset of a package .opf document's <metadata>
// block this scanner cares about. Dublin Core elements may appear with
// or without the "dc:" prefix depending on the authoring tool, so both
// are matched.
type opfMetadata struct {
	Title       string            `xml:"metadata>title"`
	Creator     string            `xml:"metadata>creator"`
	Description string            `xml:"metadata>description"`
	Language    string            `xml:"metadata>language"`
	Date        string            `xml:"metadata>date"`
	Identifiers []opfIdentifier   `xml:"metadata>identifier"`
}

type opfIdentifier struct {
	Scheme string `xml:"scheme,attr"`
	Value  string `xml:",chardata"`
}

// ParsedOPF is the resolved, post-processed content of an .opf side-car
// document, ready to feed into metadata resolution.
type ParsedOPF struct {
	Title           string
	Creator         string
	DescriptionHTML string
	DescriptionText string
	Language        string
	Date            string
	Identifiers     map[string]string // scheme (lowercased) -> value
}

// parseOPF reads and parses path as an OPF package document. A
// malformed or unreadable document is not fatal to the scan: it is
// reported to the caller, who logs and continues with opf data absent.
func parseOPF(path string) (*ParsedOPF, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path comes from a scanned title directory
	if err != nil {
		return nil, err
	}

	var raw opfMetadata
	if err := xml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	out := &ParsedOPF{
		Title:           strings.TrimSpace(raw.Title),
		Creator:         strings.TrimSpace(raw.Creator),
		DescriptionHTML: strings.TrimSpace(raw.Description),
		Language:        strings.TrimSpace(raw.Language),
		Date:            strings.TrimSpace(raw.Date),
		Identifiers:     make(map[string]string),
	}
	out.DescriptionText = htmlToText(out.DescriptionHTML)

	for _, id := range raw.Identifiers {
		scheme := strings.ToLower(strings.TrimSpace(id.Scheme))
		value := strings.TrimSpace(id.Value)
		if scheme == "" || value == "" {
			continue
		}
		out.Identifiers[scheme] = value
	}

	return out, nil
}

// htmlToText returns the plain-text projection of an HTML description.
// Strings without both '<' and '>' are returned unchanged, so plain
// descriptions are never run through the markdown converter unnecessarily.
func htmlToText(s string) string {
	if s == "" || !looksLikeHTML(s) {
		return s
	}
	text, err := htmltomarkdown.ConvertString(s)
	if err != nil {
		return s
	}
	return strings.TrimSpace(text)
}

func looksLikeHTML(s string) bool {
	return strings.ContainsAny(s, "<") && strings.ContainsAny(s, ">")
}
