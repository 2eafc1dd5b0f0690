// Package transcode implements the Job Queue, the persistent Transcode
// State Store, and the single transcode Worker.
package transcode

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/podible/podible-server/internal/domain"
)

// Store is the persistent Transcode State Store: a mapping from source
// path to TranscodeStatus, survives restarts. Mutated by the Scanner
// (creating pending records, invalidating stale ones) and the Worker
// (progress, terminal state); read by HTTP handlers.
type Store struct {
	filePath string

	mu       sync.Mutex
	statuses map[string]domain.TranscodeStatus
}

// NewStore loads a Store from filePath, treating a missing file as
// empty.
func NewStore(filePath string) (*Store, error) {
	s := &Store{
		filePath: filePath,
		statuses: make(map[string]domain.TranscodeStatus),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.filePath) //#nosec G304 -- path is server-configured data dir
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("transcode store: read %s: %w", s.filePath, err)
	}
	if len(data) == 0 {
		return nil
	}

	var records []domain.TranscodeStatus
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("transcode store: parse %s: %w", s.filePath, err)
	}
	for _, r := range records {
		s.statuses[r.Source] = r
	}
	return nil
}

// Save persists the full status set atomically.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	records := make([]domain.TranscodeStatus, 0, len(s.statuses))
	for _, r := range s.statuses {
		records = append(records, r)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("transcode store: marshal: %w", err)
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("transcode store: mkdir %s: %w", dir, err)
	}

	tmpPath := s.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil { //#nosec G306 -- transcode status is not sensitive
		return fmt.Errorf("transcode store: write %s: %w", tmpPath, err)
	}
	return os.Rename(tmpPath, s.filePath)
}

// Get returns the status for source, if any.
func (s *Store) Get(source string) (domain.TranscodeStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[source]
	return st, ok
}

// Put inserts or replaces the status for source and persists
// immediately.
func (s *Store) Put(status domain.TranscodeStatus) error {
	s.mu.Lock()
	s.statuses[status.Source] = status
	err := s.saveLocked()
	s.mu.Unlock()
	return err
}

// PutNoSave inserts or replaces the status for source without
// persisting, for batch scan updates that the caller flushes once at
// end-of-scan rather than per-book.
func (s *Store) PutNoSave(status domain.TranscodeStatus) {
	s.mu.Lock()
	s.statuses[status.Source] = status
	s.mu.Unlock()
}

// All returns a snapshot of every status record.
func (s *Store) All() []domain.TranscodeStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.TranscodeStatus, 0, len(s.statuses))
	for _, r := range s.statuses {
		out = append(out, r)
	}
	return out
}

// CountsByState returns the number of records in each terminal and
// non-terminal state, for the operator status page.
func (s *Store) CountsByState() map[domain.TranscodeState]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[domain.TranscodeState]int)
	for _, r := range s.statuses {
		counts[r.State]++
	}
	return counts
}
