package util

import (
	"os"
	"time"
)

// ResolveAddedAt applies "directory birth time, then mtime, then now" to
// dirPath. Birth time is not exposed portably through the standard
// library's os.Stat, so this falls through directly to mtime, then to
// the current time if even that is unavailable. Callers never persist
// the result; it is recomputed from filesystem times wherever a Book
// is (re)constructed, whether by a fresh scan, a reused transcode
// target, or a freshly promoted one.
func ResolveAddedAt(dirPath string) *time.Time {
	if info, err := os.Stat(dirPath); err == nil {
		t := info.ModTime()
		return &t
	}
	now := time.Now()
	return &now
}
