// Package library implements the Library Index: the persistent mapping
// from book id to a fully-resolved, streamable Book.
package library

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/podible/podible-server/internal/domain"
)

// Index is the Library Index. The Scanner and the Worker are its only
// writers; HTTP handlers only read it. AddedAt is never persisted — it
// is recomputed from filesystem times on every scan, so a restart
// re-derives ordering rather than trusting a stale snapshot.
type Index struct {
	filePath string

	mu    sync.RWMutex
	books map[string]domain.Book
}

// New loads an Index from filePath, treating a missing file as empty.
func New(filePath string) (*Index, error) {
	idx := &Index{filePath: filePath, books: make(map[string]domain.Book)}
	if err := idx.load(); err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *Index) load() error {
	data, err := os.ReadFile(idx.filePath) //#nosec G304 -- path is server-configured data dir
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("library index: read %s: %w", idx.filePath, err)
	}
	if len(data) == 0 {
		return nil
	}

	var books []domain.Book
	if err := json.Unmarshal(data, &books); err != nil {
		return fmt.Errorf("library index: parse %s: %w", idx.filePath, err)
	}
	for _, b := range books {
		idx.books[b.ID] = b
	}
	return nil
}

// Save persists the full book set atomically: write to a temp file in
// the same directory, then rename into place.
func (idx *Index) Save() error {
	idx.mu.RLock()
	books := make([]domain.Book, 0, len(idx.books))
	for _, b := range idx.books {
		b.AddedAt = nil
		books = append(books, b)
	}
	idx.mu.RUnlock()

	data, err := json.MarshalIndent(books, "", "  ")
	if err != nil {
		return fmt.Errorf("library index: marshal: %w", err)
	}

	dir := filepath.Dir(idx.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("library index: mkdir %s: %w", dir, err)
	}

	tmpPath := idx.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil { //#nosec G306 -- library index is not sensitive
		return fmt.Errorf("library index: write %s: %w", tmpPath, err)
	}
	return os.Rename(tmpPath, idx.filePath)
}

// Put inserts or replaces a Book without persisting. Callers flush with
// Save once at end-of-scan rather than per-book; the Worker calls Save
// directly after a single promotion since it does not batch.
func (idx *Index) Put(book domain.Book) {
	idx.mu.Lock()
	idx.books[book.ID] = book
	idx.mu.Unlock()
}

// Evict removes a book by id.
func (idx *Index) Evict(id string) {
	idx.mu.Lock()
	delete(idx.books, id)
	idx.mu.Unlock()
}

// ReplaceAll atomically swaps the entire book set, used by the Scanner
// at end-of-scan: books omitted from the new set are implicitly
// evicted.
func (idx *Index) ReplaceAll(books map[string]domain.Book) {
	idx.mu.Lock()
	idx.books = books
	idx.mu.Unlock()
}

// Find returns the book with the given id, if any.
func (idx *Index) Find(id string) (domain.Book, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	b, ok := idx.books[id]
	return b, ok
}

// BooksSorted returns every streamable book, ordered by Book.SortTime
// descending.
func (idx *Index) BooksSorted() []domain.Book {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]domain.Book, 0, len(idx.books))
	for _, b := range idx.books {
		if b.Streamable() {
			out = append(out, b)
		}
	}
	sortBySortTimeDesc(out)
	return out
}

// All returns every book regardless of streamability, ordered the same
// way as BooksSorted. This backs FeedBooksSorted once pending singles
// are merged in by the caller (the Index alone only knows about ready
// books; pending singles live in the Transcode Store).
func (idx *Index) All() []domain.Book {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]domain.Book, 0, len(idx.books))
	for _, b := range idx.books {
		out = append(out, b)
	}
	sortBySortTimeDesc(out)
	return out
}

func sortBySortTimeDesc(books []domain.Book) {
	sort.Slice(books, func(i, j int) bool {
		return books[i].SortTime().After(books[j].SortTime())
	})
}
