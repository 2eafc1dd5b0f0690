package scanner

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// resolvedCover is a cover image ready to be attached to a Book or
// transcode job: a path to image bytes on disk plus its MIME type.
type resolvedCover struct {
	Path string
	MIME string
}

// resolveCover implements the cover resolution order: embedded cover
// from the first .m4b, else embedded cover from the first .mp3, else a
// cover extracted from an .epub (preferring a filename containing
// "cover"), else the first raw .png, else the first raw .jpg/.jpeg.
// Extracted covers are cached under cacheDir by a hash of the source's
// full path plus its mtime (see cacheKey), so repeat scans reuse them
// instead of re-invoking ffmpeg or re-opening the epub archive.
func resolveCover(ctx context.Context, g fileGroups, cacheDir string) *resolvedCover {
	if len(g.Containers) > 0 {
		if c := extractEmbeddedCover(ctx, g.Containers[0], cacheDir); c != nil {
			return c
		}
	}
	if len(g.Parts) > 0 {
		if c := extractEmbeddedCover(ctx, g.Parts[0], cacheDir); c != nil {
			return c
		}
	}
	if len(g.Epubs) > 0 {
		if c := extractEpubCover(g.Epubs[0], cacheDir); c != nil {
			return c
		}
	}
	for _, ext := range []string{".png"} {
		if p := firstWithExt(g.Covers, ext); p != "" {
			return &resolvedCover{Path: p, MIME: "image/png"}
		}
	}
	for _, ext := range []string{".jpg", ".jpeg"} {
		if p := firstWithExt(g.Covers, ext); p != "" {
			return &resolvedCover{Path: p, MIME: "image/jpeg"}
		}
	}
	return nil
}

func firstWithExt(paths []string, ext string) string {
	for _, p := range paths {
		if strings.EqualFold(filepath.Ext(p), ext) {
			return p
		}
	}
	return ""
}

// cacheKey derives a stable cache file stem from the first 8 bytes of
// the SHA-256 of the source's full path (hex) and its modification time
// in milliseconds, so a re-scan of an unchanged file reuses the
// previously extracted cover. The stem does not contain the source's
// basename.
func cacheKey(sourcePath string) (string, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(sourcePath))
	return fmt.Sprintf("%s-%d", hex.EncodeToString(sum[:8]), info.ModTime().UnixMilli()), nil
}

// extractEmbeddedCover pulls the attached-picture stream out of an
// audio container via ffmpeg and caches it under cacheDir. Returns nil
// (not an error) if the container has no embedded artwork, since the
// caller falls through to the next resolution step.
func extractEmbeddedCover(ctx context.Context, sourcePath, cacheDir string) *resolvedCover {
	key, err := cacheKey(sourcePath)
	if err != nil {
		return nil
	}

	if p, mime, ok := findCached(cacheDir, key); ok {
		return &resolvedCover{Path: p, MIME: mime}
	}

	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil
	}

	target := filepath.Join(cacheDir, key+".cover.jpg")
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y", "-i", sourcePath,
		"-an", "-vcodec", "copy",
		target,
	)
	if err := cmd.Run(); err != nil {
		return nil
	}

	info, err := os.Stat(target)
	if err != nil || info.Size() == 0 {
		return nil
	}
	return &resolvedCover{Path: target, MIME: sniffImageMIME(target)}
}

// extractEpubCover opens epubPath as a zip archive and extracts the
// first image entry whose name contains "cover" (case-insensitive),
// falling back to the first image entry found. Caches the result under
// cacheDir by the cacheKey of epubPath.
func extractEpubCover(epubPath, cacheDir string) *resolvedCover {
	key, err := cacheKey(epubPath)
	if err != nil {
		return nil
	}
	if p, mime, ok := findCached(cacheDir, key); ok {
		return &resolvedCover{Path: p, MIME: mime}
	}

	r, err := zip.OpenReader(epubPath)
	if err != nil {
		return nil
	}
	defer r.Close()

	entry := pickEpubCoverEntry(r.File)
	if entry == nil {
		return nil
	}

	ext := strings.ToLower(filepath.Ext(entry.Name))
	mime := "image/jpeg"
	if ext == ".png" {
		mime = "image/png"
	}

	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil
	}
	target := filepath.Join(cacheDir, key+".cover"+ext)

	src, err := entry.Open()
	if err != nil {
		return nil
	}
	defer src.Close()

	dst, err := os.Create(target) //#nosec G304 -- path is our own cache directory
	if err != nil {
		return nil
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return nil
	}
	return &resolvedCover{Path: target, MIME: mime}
}

func pickEpubCoverEntry(files []*zip.File) *zip.File {
	isImage := func(name string) bool {
		switch strings.ToLower(filepath.Ext(name)) {
		case ".jpg", ".jpeg", ".png":
			return true
		default:
			return false
		}
	}

	sorted := append([]*zip.File{}, files...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	for _, f := range sorted {
		if isImage(f.Name) && strings.Contains(strings.ToLower(f.Name), "cover") {
			return f
		}
	}
	for _, f := range sorted {
		if isImage(f.Name) {
			return f
		}
	}
	return nil
}

// findCached looks for an already-extracted cover under cacheDir whose
// stem matches key, for either supported extension.
func findCached(cacheDir, key string) (path, mime string, ok bool) {
	for _, c := range []struct {
		ext  string
		mime string
	}{
		{".cover.jpg", "image/jpeg"},
		{".cover.png", "image/png"},
	} {
		p := filepath.Join(cacheDir, key+c.ext)
		if info, err := os.Stat(p); err == nil && info.Size() > 0 {
			return p, c.mime, true
		}
	}
	return "", "", false
}

func sniffImageMIME(path string) string {
	f, err := os.Open(path) //#nosec G304 -- path is our own cache directory
	if err != nil {
		return "image/jpeg"
	}
	defer f.Close()

	header := make([]byte, 8)
	if _, err := io.ReadFull(f, header); err != nil {
		return "image/jpeg"
	}
	if header[0] == 0x89 && header[1] == 'P' && header[2] == 'N' && header[3] == 'G' {
		return "image/png"
	}
	return "image/jpeg"
}
