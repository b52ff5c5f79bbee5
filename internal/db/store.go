package db

import (
	"context"

	"city_ingest/internal/models"
)

// RecordFilter selects persisted records for delete/count operations. Zero
// fields are ignored.
type RecordFilter struct {
	Ingested   *bool
	SourceName string
	Category   string
}

// Store is the persistence contract the pipeline depends on. Implementations
// must enforce a unique constraint on the fingerprint so that concurrent
// upserts of the same key collapse into one record without in-process
// locking.
type Store interface {
	FindByFingerprint(ctx context.Context, fp string) (*models.ExistingRecord, error)
	Upsert(ctx context.Context, rec *models.ExistingRecord) error
	DeleteMany(ctx context.Context, f RecordFilter) (int64, error)
	CountDocuments(ctx context.Context, f RecordFilter) (int64, error)
}

// Bool is a convenience for building RecordFilter pointer fields.
func Bool(v bool) *bool { return &v }
