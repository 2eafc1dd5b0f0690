// Package util provides common utility functions shared by the scanner
// and the transcode worker.
package util

import (
	"regexp"
	"strings"
)

var (
	// Matches spaces, underscores, and slashes (for replacement with dashes).
	wordSeparatorRe = regexp.MustCompile(`[\s_/]+`)
	// Matches non-alphanumeric characters (except dashes).
	nonAlphanumericRe = regexp.MustCompile(`[^a-z0-9-]`)
	// Matches multiple consecutive dashes.
	multipleDashRe = regexp.MustCompile(`-+`)
)

// Slugify converts a string to a canonical URL-safe slug. It is the source
// of truth for book identity: Slugify(Slugify(x)) == Slugify(x).
//
// Normalization rules:
//  1. Trim whitespace and lowercase
//  2. Replace spaces, underscores, and slashes with dashes
//  3. Remove non-alphanumeric characters (except dashes)
//  4. Collapse multiple dashes
//  5. Trim leading/trailing dashes
//
// Examples:
//
//	"Andy Weir-Project Hail Mary" → "andy-weir-project-hail-mary"
//	"  multi   word "             → "multi-word"
//	"--leading--"                 → "leading"
func Slugify(input string) string {
	s := strings.ToLower(strings.TrimSpace(input))
	s = wordSeparatorRe.ReplaceAllString(s, "-")
	s = nonAlphanumericRe.ReplaceAllString(s, "")
	s = multipleDashRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	return s
}

// CaseInsensitiveMap wraps a string-keyed map so that lookups and inserts
// are normalized to lowercase. Tag dictionaries (audio) and identifier maps
// (opf) are both case-insensitive key spaces; this centralizes the
// normalization instead of duplicating `m["X"] || m["x"]` at every call
// site.
type CaseInsensitiveMap map[string]string

// Set stores value under the lowercased key.
func (m CaseInsensitiveMap) Set(key, value string) {
	m[strings.ToLower(strings.TrimSpace(key))] = value
}

// Get returns the value for the lowercased key, and whether it was present.
func (m CaseInsensitiveMap) Get(key string) (string, bool) {
	v, ok := m[strings.ToLower(strings.TrimSpace(key))]
	return v, ok
}

// First returns the first non-empty value found across the given keys.
func (m CaseInsensitiveMap) First(keys ...string) string {
	for _, k := range keys {
		if v, ok := m.Get(k); ok && v != "" {
			return v
		}
	}
	return ""
}
