package repository

import (
	"context"
	"errors"

	"github.com/rpattn/reiteradas/internal/domain"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrIndexRequired is returned by stores that cannot serve an ordered
// query without a composite index. Callers fall back to an unordered query.
var ErrIndexRequired = errors.New("query requires an index")

// RecordRepository stores fault records.
type RecordRepository interface {
	// UpsertBatch writes every document atomically with merge semantics.
	// The store stamps createdAt with its own clock.
	UpsertBatch(ctx context.Context, docs []domain.RecordDocument) error
	// ListIDsByUpload returns up to limit ids of documents carrying uploadID.
	ListIDsByUpload(ctx context.Context, uploadID string, limit int) ([]string, error)
	// ListIDs returns up to limit ids of any documents.
	ListIDs(ctx context.Context, limit int) ([]string, error)
	// DeleteBatch removes every id atomically.
	DeleteBatch(ctx context.Context, ids []string) error
	// Query returns records of one territory ordered by DATA descending.
	Query(ctx context.Context, filter domain.RecordFilter) ([]domain.RecordDocument, error)
}

// UploadRepository stores the ledger of ingestion runs.
type UploadRepository interface {
	// Upsert merges the entry into the ledger and stamps uploadedAt.
	Upsert(ctx context.Context, entry domain.UploadEntry) error
	Get(ctx context.Context, uploadID string) (domain.UploadEntry, error)
	// List returns entries, newest first. An empty territory lists all.
	List(ctx context.Context, territory domain.Territory, limit int) ([]domain.UploadEntry, error)
	// ListUnordered is the index-free variant of List.
	ListUnordered(ctx context.Context, territory domain.Territory, limit int) ([]domain.UploadEntry, error)
	ListIDs(ctx context.Context, limit int) ([]string, error)
	DeleteBatch(ctx context.Context, ids []string) error
	Delete(ctx context.Context, uploadID string) error
}

// Store bundles the two collections of one backend.
type Store interface {
	Records() RecordRepository
	Uploads() UploadRepository
	Close(ctx context.Context) error
}
