// Package stream implements the Virtual Stream Assembler: it maps an
// absolute byte range over tag(book) ‖ audio(book) onto the chapter-tag
// buffer and an ordered sequence of part-file slices, and streams the
// result without ever materializing the full concatenation.
package stream

import (
	"strconv"
	"strings"
)

// ParseRange parses an HTTP Range header of the form "bytes=A-B",
// "bytes=A-", or "bytes=-N" against an object of the given size.
//
// ok == false, unsatisfiable == false means "no range supplied, serve
// whole object": a missing header, a malformed unit, non-numeric
// bounds, A > B, or a negative value anywhere (including the
// "bytes=-0" suffix case).
//
// ok == false, unsatisfiable == true means A >= size: the request
// names a starting offset at or beyond the object, which the response
// table maps to 416 rather than a silent fallback.
//
// When ok is true, start and end are both valid inclusive byte offsets
// with end clamped to size-1.
func ParseRange(header string, size int64) (start, end int64, ok, unsatisfiable bool) {
	if header == "" || size <= 0 {
		return 0, 0, false, false
	}
	if !strings.HasPrefix(header, "bytes=") {
		return 0, 0, false, false
	}

	spec := strings.TrimPrefix(header, "bytes=")
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false, false
	}

	if parts[0] == "" {
		// Suffix range: bytes=-N, the last N bytes.
		if parts[1] == "" {
			return 0, 0, false, false
		}
		n, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, false, false
		}
		start = size - n
		if start < 0 {
			start = 0
		}
		end = size - 1
	} else {
		a, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil || a < 0 {
			return 0, 0, false, false
		}
		start = a

		if parts[1] == "" {
			end = size - 1
		} else {
			b, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil || b < 0 {
				return 0, 0, false, false
			}
			end = b
		}
	}

	if start >= size {
		return 0, 0, false, true
	}
	if start > end {
		return 0, 0, false, false
	}
	if end > size-1 {
		end = size - 1
	}
	return start, end, true, false
}
