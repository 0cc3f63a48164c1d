// Package firestore stores records and the upload ledger in Cloud Firestore.
package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rpattn/reiteradas/internal/domain"
	"github.com/rpattn/reiteradas/internal/repository"
)

// Config selects the Firebase project and collection names.
type Config struct {
	ProjectID         string `mapstructure:"project_id"`
	CredentialsFile   string `mapstructure:"credentials_file"`
	RecordsCollection string `mapstructure:"records_collection"`
	UploadsCollection string `mapstructure:"uploads_collection"`
}

// DefaultConfig uses the collection names of the dashboard.
func DefaultConfig() Config {
	return Config{
		RecordsCollection: "reinteradas",
		UploadsCollection: "uploads",
	}
}

// NewApp initializes the Firebase Admin SDK. Without a credentials file
// the application default credentials are used.
func NewApp(ctx context.Context, cfg Config) (*firebase.App, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	return app, nil
}

// Store implements repository.Store on two Firestore collections.
type Store struct {
	client  *firestore.Client
	records *firestore.CollectionRef
	uploads *firestore.CollectionRef
}

// Open returns a store backed by the app's Firestore client.
func Open(ctx context.Context, app *firebase.App, cfg Config) (*Store, error) {
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get firestore client: %w", err)
	}
	return New(client, cfg), nil
}

// New wraps an existing client.
func New(client *firestore.Client, cfg Config) *Store {
	def := DefaultConfig()
	if cfg.RecordsCollection == "" {
		cfg.RecordsCollection = def.RecordsCollection
	}
	if cfg.UploadsCollection == "" {
		cfg.UploadsCollection = def.UploadsCollection
	}
	return &Store{
		client:  client,
		records: client.Collection(cfg.RecordsCollection),
		uploads: client.Collection(cfg.UploadsCollection),
	}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) Records() repository.RecordRepository { return recordRepository{s} }

func (s *Store) Uploads() repository.UploadRepository { return uploadRepository{s} }

func (s *Store) Close(context.Context) error {
	return s.client.Close()
}

// translate maps Firestore status codes onto repository errors.
func translate(err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return repository.ErrNotFound
	case codes.FailedPrecondition:
		return fmt.Errorf("%w: %v", repository.ErrIndexRequired, err)
	}
	return err
}

func (s *Store) commitDeletes(ctx context.Context, coll *firestore.CollectionRef, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	batch := s.client.Batch()
	for _, id := range ids {
		batch.Delete(coll.Doc(id))
	}
	if _, err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit delete batch: %w", err)
	}
	return nil
}

func documentIDs(ctx context.Context, q firestore.Query) ([]string, error) {
	snaps, err := q.Select().Documents(ctx).GetAll()
	if err != nil {
		return nil, translate(err)
	}
	ids := make([]string, 0, len(snaps))
	for _, snap := range snaps {
		ids = append(ids, snap.Ref.ID)
	}
	return ids, nil
}

type recordRepository struct {
	s *Store
}

func (r recordRepository) UpsertBatch(ctx context.Context, docs []domain.RecordDocument) error {
	if len(docs) == 0 {
		return nil
	}
	batch := r.s.client.Batch()
	for _, doc := range docs {
		payload := doc.Payload()
		payload["createdAt"] = firestore.ServerTimestamp
		batch.Set(r.s.records.Doc(doc.ID), payload, firestore.MergeAll)
	}
	if _, err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit record batch: %w", err)
	}
	return nil
}

func (r recordRepository) ListIDsByUpload(ctx context.Context, uploadID string, limit int) ([]string, error) {
	return documentIDs(ctx, r.s.records.Where("uploadId", "==", uploadID).Limit(limit))
}

func (r recordRepository) ListIDs(ctx context.Context, limit int) ([]string, error) {
	return documentIDs(ctx, r.s.records.Limit(limit))
}

func (r recordRepository) DeleteBatch(ctx context.Context, ids []string) error {
	return r.s.commitDeletes(ctx, r.s.records, ids)
}

func (r recordRepository) Query(ctx context.Context, filter domain.RecordFilter) ([]domain.RecordDocument, error) {
	q := r.s.records.Where("REGIONAL", "==", string(filter.Territory))
	if filter.From != "" {
		q = q.Where(domain.FieldData, ">=", filter.From)
	}
	if filter.To != "" {
		q = q.Where(domain.FieldData, "<=", filter.To)
	}
	// Range filters require ordering on the same field.
	q = q.OrderBy(domain.FieldData, firestore.Desc).Limit(filter.EffectiveLimit())

	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", translate(err))
	}
	docs := make([]domain.RecordDocument, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, domain.RecordFromPayload(snap.Ref.ID, snap.Data()))
	}
	return docs, nil
}

type uploadRepository struct {
	s *Store
}

func (u uploadRepository) Upsert(ctx context.Context, entry domain.UploadEntry) error {
	payload := entry.Payload()
	payload["uploadedAt"] = firestore.ServerTimestamp
	if _, err := u.s.uploads.Doc(entry.UploadID).Set(ctx, payload, firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to write upload %s: %w", entry.UploadID, err)
	}
	return nil
}

func (u uploadRepository) Get(ctx context.Context, uploadID string) (domain.UploadEntry, error) {
	snap, err := u.s.uploads.Doc(uploadID).Get(ctx)
	if err != nil {
		err = translate(err)
		if errors.Is(err, repository.ErrNotFound) {
			return domain.UploadEntry{}, err
		}
		return domain.UploadEntry{}, fmt.Errorf("failed to get upload %s: %w", uploadID, err)
	}
	return domain.UploadEntryFromPayload(snap.Ref.ID, snap.Data()), nil
}

func (u uploadRepository) query(territory domain.Territory, limit int) firestore.Query {
	if limit <= 0 || limit > domain.DefaultQueryLimit {
		limit = domain.DefaultQueryLimit
	}
	q := u.s.uploads.Query
	if territory != "" {
		q = q.Where("REGIONAL", "==", string(territory))
	}
	return q.Limit(limit)
}

func (u uploadRepository) List(ctx context.Context, territory domain.Territory, limit int) ([]domain.UploadEntry, error) {
	return u.read(ctx, u.query(territory, limit).OrderBy("uploadedAt", firestore.Desc))
}

func (u uploadRepository) ListUnordered(ctx context.Context, territory domain.Territory, limit int) ([]domain.UploadEntry, error) {
	return u.read(ctx, u.query(territory, limit))
}

func (u uploadRepository) read(ctx context.Context, q firestore.Query) ([]domain.UploadEntry, error) {
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, translate(err)
	}
	entries := make([]domain.UploadEntry, 0, len(snaps))
	for _, snap := range snaps {
		entries = append(entries, domain.UploadEntryFromPayload(snap.Ref.ID, snap.Data()))
	}
	return entries, nil
}

func (u uploadRepository) ListIDs(ctx context.Context, limit int) ([]string, error) {
	return documentIDs(ctx, u.s.uploads.Limit(limit))
}

func (u uploadRepository) DeleteBatch(ctx context.Context, ids []string) error {
	return u.s.commitDeletes(ctx, u.s.uploads, ids)
}

func (u uploadRepository) Delete(ctx context.Context, uploadID string) error {
	if _, err := u.s.uploads.Doc(uploadID).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete upload %s: %w", uploadID, translate(err))
	}
	return nil
}
