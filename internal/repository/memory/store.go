// Package memory keeps records and the upload ledger in process memory.
// It backs local runs without a database and the package tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rpattn/reiteradas/internal/domain"
	"github.com/rpattn/reiteradas/internal/repository"
)

// Store is a concurrency-safe in-memory document store.
type Store struct {
	mu      sync.RWMutex
	records map[string]map[string]any
	uploads map[string]map[string]any
	now     func() time.Time

	requireIndex bool
}

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces the server clock used for createdAt and uploadedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithoutOrderedUploads makes ordered ledger listings fail with
// repository.ErrIndexRequired, like a document store lacking the index.
func WithoutOrderedUploads() Option {
	return func(s *Store) {
		s.requireIndex = true
	}
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		records: make(map[string]map[string]any),
		uploads: make(map[string]map[string]any),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ repository.Store = (*Store)(nil)

func (s *Store) Records() repository.RecordRepository { return recordRepository{s} }

func (s *Store) Uploads() repository.UploadRepository { return uploadRepository{s} }

func (s *Store) Close(context.Context) error { return nil }

// RecordCount returns the number of stored records.
func (s *Store) RecordCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// RecordIDs returns the sorted ids of every stored record.
func (s *Store) RecordIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.records)
}

func merge(dst map[string]any, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func sortedKeys(m map[string]map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyPayload(payload map[string]any) map[string]any {
	return merge(nil, payload)
}

type recordRepository struct {
	s *Store
}

func (r recordRepository) UpsertBatch(ctx context.Context, docs []domain.RecordDocument) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	for _, doc := range docs {
		payload := merge(r.s.records[doc.ID], doc.Payload())
		payload["createdAt"] = now
		r.s.records[doc.ID] = payload
	}
	return nil
}

func (r recordRepository) ListIDsByUpload(ctx context.Context, uploadID string, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var ids []string
	for _, id := range sortedKeys(r.s.records) {
		if limit > 0 && len(ids) >= limit {
			break
		}
		if r.s.records[id]["uploadId"] == uploadID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r recordRepository) ListIDs(ctx context.Context, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	ids := sortedKeys(r.s.records)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (r recordRepository) DeleteBatch(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range ids {
		delete(r.s.records, id)
	}
	return nil
}

func (r recordRepository) Query(ctx context.Context, filter domain.RecordFilter) ([]domain.RecordDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var docs []domain.RecordDocument
	for id, payload := range r.s.records {
		if payload["regional"] != string(filter.Territory) {
			continue
		}
		date, _ := payload[domain.FieldData].(string)
		if filter.From != "" && date < filter.From {
			continue
		}
		if filter.To != "" && date > filter.To {
			continue
		}
		docs = append(docs, domain.RecordFromPayload(id, copyPayload(payload)))
	}
	sort.SliceStable(docs, func(i, j int) bool {
		di, dj := docs[i].Fields.Get(domain.FieldData), docs[j].Fields.Get(domain.FieldData)
		if di != dj {
			return di > dj
		}
		return docs[i].ID < docs[j].ID
	})
	if limit := filter.EffectiveLimit(); len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

type uploadRepository struct {
	s *Store
}

func (u uploadRepository) Upsert(ctx context.Context, entry domain.UploadEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	payload := merge(u.s.uploads[entry.UploadID], entry.Payload())
	payload["uploadedAt"] = u.s.now()
	u.s.uploads[entry.UploadID] = payload
	return nil
}

func (u uploadRepository) Get(ctx context.Context, uploadID string) (domain.UploadEntry, error) {
	if err := ctx.Err(); err != nil {
		return domain.UploadEntry{}, err
	}
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	payload, ok := u.s.uploads[uploadID]
	if !ok {
		return domain.UploadEntry{}, repository.ErrNotFound
	}
	return domain.UploadEntryFromPayload(uploadID, copyPayload(payload)), nil
}

func (u uploadRepository) List(ctx context.Context, territory domain.Territory, limit int) ([]domain.UploadEntry, error) {
	if u.s.requireIndex {
		return nil, repository.ErrIndexRequired
	}
	entries, err := u.ListUnordered(ctx, territory, 0)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].UploadedAt.After(entries[j].UploadedAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (u uploadRepository) ListUnordered(ctx context.Context, territory domain.Territory, limit int) ([]domain.UploadEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	var entries []domain.UploadEntry
	for _, id := range sortedKeys(u.s.uploads) {
		if limit > 0 && len(entries) >= limit {
			break
		}
		payload := u.s.uploads[id]
		if territory != "" && payload["regional"] != string(territory) {
			continue
		}
		entries = append(entries, domain.UploadEntryFromPayload(id, copyPayload(payload)))
	}
	return entries, nil
}

func (u uploadRepository) ListIDs(ctx context.Context, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	ids := sortedKeys(u.s.uploads)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (u uploadRepository) DeleteBatch(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for _, id := range ids {
		delete(u.s.uploads, id)
	}
	return nil
}

func (u uploadRepository) Delete(ctx context.Context, uploadID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if _, ok := u.s.uploads[uploadID]; !ok {
		return repository.ErrNotFound
	}
	delete(u.s.uploads, uploadID)
	return nil
}
