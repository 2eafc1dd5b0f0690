package stream

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/podible/podible-server/internal/domain"
)

func writeTempFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAssemblerServesWholeSingleContainer(t *testing.T) {
	dir := t.TempDir()
	data := bytes.Repeat([]byte{0xAB}, 1000)
	path := writeTempFile(t, dir, "book.mp3", data)

	book := &domain.Book{
		Kind:        domain.KindSingle,
		TotalSize:   int64(len(data)),
		PrimaryFile: &domain.AudioSegment{Path: path, Size: int64(len(data))},
	}

	asm := NewAssembler(nil)
	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	rec := httptest.NewRecorder()

	if err := asm.ServeHTTP(rec, req, book); err != nil {
		t.Fatalf("ServeHTTP: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() != len(data) {
		t.Errorf("body len = %d, want %d", rec.Body.Len(), len(data))
	}
}

func TestAssemblerSuffixRangeOnSingleContainer(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, 1_000_000)
	for i := range data {
		data[i] = byte(i % 251)
	}
	path := writeTempFile(t, dir, "book.mp3", data)

	book := &domain.Book{
		Kind:        domain.KindSingle,
		TotalSize:   int64(len(data)),
		PrimaryFile: &domain.AudioSegment{Path: path, Size: int64(len(data))},
	}

	asm := NewAssembler(nil)
	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	req.Header.Set("Range", "bytes=-1000")
	rec := httptest.NewRecorder()

	if err := asm.ServeHTTP(rec, req, book); err != nil {
		t.Fatalf("ServeHTTP: %v", err)
	}
	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 999000-999999/1000000" {
		t.Errorf("Content-Range = %q, want bytes 999000-999999/1000000", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), data[999000:1000000]) {
		t.Error("body does not match last 1000 bytes")
	}
}

func TestAssemblerMultiBookRangeCrossingTagAudioBoundary(t *testing.T) {
	dir := t.TempDir()
	part1 := bytes.Repeat([]byte{0x01}, 100)
	part2 := bytes.Repeat([]byte{0x02}, 200)
	path1 := writeTempFile(t, dir, "01.mp3", part1)
	path2 := writeTempFile(t, dir, "02.mp3", part2)

	tag := bytes.Repeat([]byte{0xFF}, 37) // arbitrary fixed-length stand-in tag
	book := &domain.Book{
		Kind:      domain.KindMulti,
		TotalSize: int64(len(part1) + len(part2)),
		Files: []domain.AudioSegment{
			{Path: path1, Size: int64(len(part1)), Start: 0, End: int64(len(part1) - 1)},
			{Path: path2, Size: int64(len(part2)), Start: int64(len(part1)), End: int64(len(part1)+len(part2)) - 1},
		},
	}

	asm := NewAssembler(func(*domain.Book) []byte { return tag })

	tagLen := int64(len(tag))
	rangeStart := tagLen - 5
	rangeEnd := tagLen + 4

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", rangeStart, rangeEnd))
	rec := httptest.NewRecorder()

	if err := asm.ServeHTTP(rec, req, book); err != nil {
		t.Fatalf("ServeHTTP: %v", err)
	}
	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rec.Code)
	}
	if rec.Body.Len() != 10 {
		t.Fatalf("Content-Length = %d, want 10", rec.Body.Len())
	}

	want := append(append([]byte{}, tag[tagLen-5:]...), part1[:5]...)
	if !bytes.Equal(rec.Body.Bytes(), want) {
		t.Errorf("body = % x, want % x", rec.Body.Bytes(), want)
	}

	total := tagLen + book.TotalSize
	wantContentRange := fmt.Sprintf("bytes %d-%d/%d", rangeStart, rangeEnd, total)
	if got := rec.Header().Get("Content-Range"); got != wantContentRange {
		t.Errorf("Content-Range = %q, want %q", got, wantContentRange)
	}
}

func TestAssemblerRangeStartAtOrBeyondSizeReturns416(t *testing.T) {
	dir := t.TempDir()
	data := bytes.Repeat([]byte{0xAB}, 100)
	path := writeTempFile(t, dir, "book.mp3", data)

	book := &domain.Book{
		Kind:        domain.KindSingle,
		TotalSize:   int64(len(data)),
		PrimaryFile: &domain.AudioSegment{Path: path, Size: int64(len(data))},
	}

	asm := NewAssembler(nil)
	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	req.Header.Set("Range", "bytes=100-200")
	rec := httptest.NewRecorder()

	if err := asm.ServeHTTP(rec, req, book); err != nil {
		t.Fatalf("ServeHTTP: %v", err)
	}
	if rec.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("status = %d, want 416", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes */100" {
		t.Errorf("Content-Range = %q, want bytes */100", got)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body len = %d, want 0", rec.Body.Len())
	}
}

func TestAssemblerEmptyChaptersSingleServesContainerDirectly(t *testing.T) {
	dir := t.TempDir()
	data := []byte("raw container bytes")
	path := writeTempFile(t, dir, "book.mp3", data)

	book := &domain.Book{
		Kind:        domain.KindSingle,
		TotalSize:   int64(len(data)),
		PrimaryFile: &domain.AudioSegment{Path: path, Size: int64(len(data))},
	}

	// Tag encoder is set but should never be consulted for a single book.
	called := false
	asm := NewAssembler(func(*domain.Book) []byte { called = true; return []byte("should not appear") })

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	rec := httptest.NewRecorder()
	if err := asm.ServeHTTP(rec, req, book); err != nil {
		t.Fatalf("ServeHTTP: %v", err)
	}

	if called {
		t.Error("tag encoder should not be invoked for a single-kind book")
	}
	if !bytes.Equal(rec.Body.Bytes(), data) {
		t.Error("single book body should equal the raw container bytes")
	}
}

