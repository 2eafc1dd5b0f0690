package core

import (
	"sort"
	"time"

	"github.com/podible/podible-server/internal/domain"
)

func unixToTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// sortBySortTimeDesc mirrors library.Index's own ordering so merged
// ready+pending book lists stay consistently ordered.
func sortBySortTimeDesc(books []domain.Book) {
	sort.Slice(books, func(i, j int) bool {
		return books[i].SortTime().After(books[j].SortTime())
	})
}
