// Package id generates short, prefixed, URL-safe identifiers — used for
// transcode job IDs so they can be logged and correlated across a
// job's lifetime without looking like anything sensitive.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// idLength is the NanoID default: 21 characters gives collision odds
// comparable to a UUIDv4 at roughly half the width.
const idLength = 21

// Generate returns "prefix-<nanoid>", e.g. "job-V1StGXR8_Z5jdHi6B-myT".
// It fails only if the system cannot supply enough random bytes.
func Generate(prefix string) (string, error) {
	part, err := gonanoid.New(idLength)
	if err != nil {
		return "", fmt.Errorf("id: generate %q id: %w", prefix, err)
	}
	return prefix + "-" + part, nil
}

// MustGenerate is Generate for call sites where an entropy failure is
// unrecoverable anyway and should surface immediately rather than
// leaving an empty ID to propagate.
func MustGenerate(prefix string) string {
	v, err := Generate(prefix)
	if err != nil {
		panic(err)
	}
	return v
}
