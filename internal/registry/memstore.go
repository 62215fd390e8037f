package registry

import (
	"fmt"
	"sort"
	"sync"
)

// MemStore is an in-memory Store implementation used in tests and by the
// device simulator. It has the same merge semantics as FileStore.
type MemStore struct {
	mu      sync.Mutex
	devices map[string]*Record

	// PutCount counts Put and Merge writes, so tests can assert how many
	// registry writes a session performed.
	PutCount int
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{devices: make(map[string]*Record)}
}

// List returns all records, sorted by ID.
func (s *MemStore) List() ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]*Record, 0, len(s.devices))
	for _, rec := range s.devices {
		records = append(records, rec.Clone())
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

// Get returns the record for id, or nil if no record exists.
func (s *MemStore) Get(id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devices[id].Clone(), nil
}

// Put creates or replaces the record for rec.ID.
func (s *MemStore) Put(rec *Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record has empty device ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[rec.ID] = rec.Clone()
	s.PutCount++
	return nil
}

// Merge performs a read-modify-write for id.
func (s *MemStore) Merge(id string, fn func(*Record)) (*Record, error) {
	if id == "" {
		return nil, fmt.Errorf("merge with empty device ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.devices[id]
	if rec == nil {
		rec = &Record{ID: id}
	} else {
		rec = rec.Clone()
	}
	fn(rec)
	rec.ID = id

	s.devices[id] = rec
	s.PutCount++
	return rec.Clone(), nil
}

// Delete removes the record for id.
func (s *MemStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.devices, id)
	return nil
}
