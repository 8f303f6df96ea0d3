package history

import (
	"errors"
	"fmt"
	"sync"

	"github.com/streamshort/backend/internal/models"
)

// ErrSlugTaken is returned when a new record reuses a stored slug.
var ErrSlugTaken = errors.New("slug already in use")

// Store is the in-memory history backed by a Port. Each mutation builds the
// new list, saves it whole, and only then replaces the in-memory copy.
type Store struct {
	mu      sync.RWMutex
	port    Port
	records []models.VideoRecord
}

// NewStore loads the current history from port.
func NewStore(port Port) (*Store, error) {
	records, err := port.LoadAll()
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []models.VideoRecord{}
	}
	return &Store{port: port, records: records}, nil
}

// List returns a copy of the history, newest first.
func (s *Store) List() []models.VideoRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.VideoRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Get returns the record with id.
func (s *Store) Get(id string) (models.VideoRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.records {
		if r.ID == id {
			return r, true
		}
	}
	return models.VideoRecord{}, false
}

// PrependUnique builds a record and adds it at the front, all under the write
// lock. build receives a lookup over the slugs already stored; the slug it
// picks stays free until the save completes. A record whose id or slug is
// already stored is rejected.
func (s *Store) PrependUnique(build func(taken func(slug string) bool) (models.VideoRecord, error)) (models.VideoRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := build(s.slugTaken)
	if err != nil {
		return models.VideoRecord{}, err
	}

	for _, r := range s.records {
		if r.ID == rec.ID {
			return models.VideoRecord{}, fmt.Errorf("record %s already exists", rec.ID)
		}
		if r.Slug == rec.Slug {
			return models.VideoRecord{}, fmt.Errorf("%w: %s", ErrSlugTaken, rec.Slug)
		}
	}

	next := make([]models.VideoRecord, 0, len(s.records)+1)
	next = append(next, rec)
	next = append(next, s.records...)
	if err := s.commit(next); err != nil {
		return models.VideoRecord{}, err
	}
	return rec, nil
}

// slugTaken must be called with mu held.
func (s *Store) slugTaken(slug string) bool {
	for _, r := range s.records {
		if r.Slug == slug {
			return true
		}
	}
	return false
}

// Delete removes the record with id. Deleting an absent id changes nothing
// and reports ok=false.
func (s *Store) Delete(id string) (models.VideoRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, r := range s.records {
		if r.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return models.VideoRecord{}, false, nil
	}

	removed := s.records[idx]
	next := make([]models.VideoRecord, 0, len(s.records)-1)
	next = append(next, s.records[:idx]...)
	next = append(next, s.records[idx+1:]...)
	if err := s.commit(next); err != nil {
		return models.VideoRecord{}, false, err
	}
	return removed, true, nil
}

// Clear empties the history and returns what was removed. The empty list is
// always written, even when the history was already empty.
func (s *Store) Clear() ([]models.VideoRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.records
	if err := s.commit([]models.VideoRecord{}); err != nil {
		return nil, err
	}
	return removed, nil
}

// commit must be called with mu held.
func (s *Store) commit(next []models.VideoRecord) error {
	if err := s.port.SaveAll(next); err != nil {
		return err
	}
	s.records = next
	return nil
}
