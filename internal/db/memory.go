package db

import (
	"context"
	"sync"

	"city_ingest/internal/models"
)

// MemStore is an in-memory Store keyed by fingerprint. It backs tests and
// local dry runs where no MongoDB is available.
type MemStore struct {
	mu      sync.Mutex
	records map[string]*models.ExistingRecord
}

func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]*models.ExistingRecord)}
}

func (s *MemStore) FindByFingerprint(_ context.Context, fp string) (*models.ExistingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[fp]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *MemStore) Upsert(_ context.Context, rec *models.ExistingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	s.records[rec.Fingerprint] = &cp
	return nil
}

func (s *MemStore) DeleteMany(_ context.Context, f RecordFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for fp, rec := range s.records {
		if matches(rec, f) {
			delete(s.records, fp)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemStore) CountDocuments(_ context.Context, f RecordFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, rec := range s.records {
		if matches(rec, f) {
			count++
		}
	}
	return count, nil
}

func matches(rec *models.ExistingRecord, f RecordFilter) bool {
	if f.Ingested != nil && rec.Ingested != *f.Ingested {
		return false
	}
	if f.SourceName != "" && rec.SourceName != f.SourceName {
		return false
	}
	if f.Category != "" && rec.Category != f.Category {
		return false
	}
	return true
}
