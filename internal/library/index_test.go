package library

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/podible/podible-server/internal/domain"
	"github.com/podible/podible-server/internal/transcode"
)

func bookAt(id string, addedAt time.Time, streamable bool) domain.Book {
	b := domain.Book{ID: id, Kind: domain.KindSingle, AddedAt: &addedAt}
	if streamable {
		b.PrimaryFile = &domain.AudioSegment{Size: 10}
	}
	return b
}

func TestIndexPutFindEvict(t *testing.T) {
	idx, err := New(filepath.Join(t.TempDir(), "library-index.json"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	b := bookAt("a-1", time.Now(), true)
	idx.Put(b)

	got, ok := idx.Find("a-1")
	if !ok || got.ID != "a-1" {
		t.Fatalf("Find(a-1) = %+v, %v", got, ok)
	}

	idx.Evict("a-1")
	if _, ok := idx.Find("a-1"); ok {
		t.Error("expected book to be evicted")
	}
}

func TestIndexBooksSortedOrderingAndStreamability(t *testing.T) {
	idx, err := New(filepath.Join(t.TempDir(), "library-index.json"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	now := time.Now()
	idx.Put(bookAt("old", now.Add(-time.Hour), true))
	idx.Put(bookAt("new", now, true))
	idx.Put(bookAt("not-streamable", now.Add(time.Hour), false))

	sorted := idx.BooksSorted()
	if len(sorted) != 2 {
		t.Fatalf("len(BooksSorted()) = %d, want 2 (non-streamable excluded)", len(sorted))
	}
	if sorted[0].ID != "new" || sorted[1].ID != "old" {
		t.Errorf("order = [%s, %s], want [new, old] (descending by AddedAt)", sorted[0].ID, sorted[1].ID)
	}
}

func TestIndexSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library-index.json")

	idx1, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	idx1.Put(bookAt("a-1", time.Now(), true))
	if err := idx1.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	idx2, err := New(path)
	if err != nil {
		t.Fatalf("New (reload): %v", err)
	}
	if _, ok := idx2.Find("a-1"); !ok {
		t.Error("expected a-1 to survive a save/reload round trip")
	}
}

// TestIndexPutFindBuildBookAddedAt constructs a Book through the real
// promotion path (transcode.BuildBook) rather than the hand-rolled
// bookAt helper, so a regression that stops AddedAt from being
// resolved at promotion time would be caught here even if every other
// test keeps passing.
func TestIndexPutFindBuildBookAddedAt(t *testing.T) {
	idx, err := New(filepath.Join(t.TempDir(), "library-index.json"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	addedAt := time.Now().Add(-3 * time.Hour)
	meta := &domain.BookMeta{ID: "promoted-1", Title: "Promoted Book", Author: "Some Author"}
	b := transcode.BuildBook(meta, filepath.Join(t.TempDir(), "promoted-1.mp3"), 2048, &addedAt)

	idx.Put(*b)

	got, ok := idx.Find("promoted-1")
	if !ok {
		t.Fatalf("Find(promoted-1) = _, false")
	}
	if got.AddedAt == nil {
		t.Fatal("AddedAt is nil after Put/Find round trip through a BuildBook-constructed Book")
	}
	if !got.AddedAt.Equal(addedAt) {
		t.Errorf("AddedAt = %v, want %v", *got.AddedAt, addedAt)
	}
}

func TestIndexReplaceAllEvictsOmitted(t *testing.T) {
	idx, err := New(filepath.Join(t.TempDir(), "library-index.json"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	idx.Put(bookAt("a-1", time.Now(), true))

	idx.ReplaceAll(map[string]domain.Book{"b-1": bookAt("b-1", time.Now(), true)})

	if _, ok := idx.Find("a-1"); ok {
		t.Error("a-1 should be evicted when omitted from ReplaceAll")
	}
	if _, ok := idx.Find("b-1"); !ok {
		t.Error("b-1 should be present after ReplaceAll")
	}
}
