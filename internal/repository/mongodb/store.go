// Package mongodb stores records and the upload ledger in MongoDB.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rpattn/reiteradas/internal/domain"
	"github.com/rpattn/reiteradas/internal/repository"
)

// Config selects the deployment, database and collections.
type Config struct {
	URI               string        `mapstructure:"uri"`
	Database          string        `mapstructure:"database"`
	RecordsCollection string        `mapstructure:"records_collection"`
	UploadsCollection string        `mapstructure:"uploads_collection"`
	Timeout           time.Duration `mapstructure:"timeout"`
	// Transactions makes batch writes all-or-nothing. It needs a replica set.
	Transactions bool `mapstructure:"transactions"`
}

func DefaultConfig() Config {
	return Config{
		URI:               "mongodb://localhost:27017",
		Database:          "reiteradas",
		RecordsCollection: "reinteradas",
		UploadsCollection: "uploads",
		Timeout:           10 * time.Second,
		Transactions:      true,
	}
}

// Store implements repository.Store on two MongoDB collections.
type Store struct {
	client  *mongo.Client
	cfg     Config
	records *mongo.Collection
	uploads *mongo.Collection
}

// Open connects, pings and prepares the indexes used by the queries.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI).SetTimeout(cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	db := client.Database(cfg.Database)
	s := &Store{
		client:  client,
		cfg:     cfg,
		records: db.Collection(cfg.RecordsCollection),
		uploads: db.Collection(cfg.UploadsCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.records.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "uploadId", Value: 1}, {Key: "rowIndex", Value: 1}}},
		{Keys: bson.D{{Key: "REGIONAL", Value: 1}, {Key: domain.FieldData, Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create record indexes: %w", err)
	}
	_, err = s.uploads.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "REGIONAL", Value: 1}, {Key: "uploadedAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create upload indexes: %w", err)
	}
	return nil
}

var _ repository.Store = (*Store)(nil)

func (s *Store) Records() repository.RecordRepository { return recordRepository{s} }

func (s *Store) Uploads() repository.UploadRepository { return uploadRepository{s} }

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// atomically runs fn in a transaction when enabled.
func (s *Store) atomically(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.cfg.Transactions {
		return fn(ctx)
	}
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func idsOf(ctx context.Context, coll *mongo.Collection, filter bson.M, limit int) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list ids: %w", err)
	}
	var rows []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode ids: %w", err)
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}

func (s *Store) deleteIDs(ctx context.Context, coll *mongo.Collection, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.atomically(ctx, func(ctx context.Context) error {
		if _, err := coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); err != nil {
			return fmt.Errorf("failed to delete batch: %w", err)
		}
		return nil
	})
}

// plain converts driver types into the shapes the domain decoders expect.
func plain(doc bson.M) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = plainValue(v)
	}
	return out
}

func plainValue(v any) any {
	switch value := v.(type) {
	case primitive.DateTime:
		return value.Time().UTC()
	case primitive.A:
		items := make([]any, len(value))
		for i, item := range value {
			items[i] = plainValue(item)
		}
		return items
	case bson.M:
		return plain(value)
	}
	return v
}

type recordRepository struct {
	s *Store
}

func (r recordRepository) UpsertBatch(ctx context.Context, docs []domain.RecordDocument) error {
	if len(docs) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(docs))
	for _, doc := range docs {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": doc.ID}).
			SetUpdate(bson.M{
				"$set":         doc.Payload(),
				"$currentDate": bson.M{"createdAt": true},
			}).
			SetUpsert(true))
	}
	return r.s.atomically(ctx, func(ctx context.Context) error {
		if _, err := r.s.records.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true)); err != nil {
			return fmt.Errorf("failed to write record batch: %w", err)
		}
		return nil
	})
}

func (r recordRepository) ListIDsByUpload(ctx context.Context, uploadID string, limit int) ([]string, error) {
	return idsOf(ctx, r.s.records, bson.M{"uploadId": uploadID}, limit)
}

func (r recordRepository) ListIDs(ctx context.Context, limit int) ([]string, error) {
	return idsOf(ctx, r.s.records, bson.M{}, limit)
}

func (r recordRepository) DeleteBatch(ctx context.Context, ids []string) error {
	return r.s.deleteIDs(ctx, r.s.records, ids)
}

func recordFilter(filter domain.RecordFilter) bson.M {
	query := bson.M{"REGIONAL": string(filter.Territory)}
	dateRange := bson.M{}
	if filter.From != "" {
		dateRange["$gte"] = filter.From
	}
	if filter.To != "" {
		dateRange["$lte"] = filter.To
	}
	if len(dateRange) > 0 {
		query[domain.FieldData] = dateRange
	}
	return query
}

func (r recordRepository) Query(ctx context.Context, filter domain.RecordFilter) ([]domain.RecordDocument, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: domain.FieldData, Value: -1}}).
		SetLimit(int64(filter.EffectiveLimit()))
	cursor, err := r.s.records.Find(ctx, recordFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	var rows []bson.M
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}
	docs := make([]domain.RecordDocument, 0, len(rows))
	for _, row := range rows {
		id := fmt.Sprint(row["_id"])
		delete(row, "_id")
		docs = append(docs, domain.RecordFromPayload(id, plain(row)))
	}
	return docs, nil
}

type uploadRepository struct {
	s *Store
}

func (u uploadRepository) Upsert(ctx context.Context, entry domain.UploadEntry) error {
	_, err := u.s.uploads.UpdateOne(ctx,
		bson.M{"_id": entry.UploadID},
		bson.M{
			"$set":         entry.Payload(),
			"$currentDate": bson.M{"uploadedAt": true},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to write upload %s: %w", entry.UploadID, err)
	}
	return nil
}

func (u uploadRepository) Get(ctx context.Context, uploadID string) (domain.UploadEntry, error) {
	var row bson.M
	err := u.s.uploads.FindOne(ctx, bson.M{"_id": uploadID}).Decode(&row)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.UploadEntry{}, repository.ErrNotFound
	}
	if err != nil {
		return domain.UploadEntry{}, fmt.Errorf("failed to get upload %s: %w", uploadID, err)
	}
	return domain.UploadEntryFromPayload(uploadID, plain(row)), nil
}

func (u uploadRepository) find(ctx context.Context, territory domain.Territory, limit int, ordered bool) ([]domain.UploadEntry, error) {
	if limit <= 0 || limit > domain.DefaultQueryLimit {
		limit = domain.DefaultQueryLimit
	}
	filter := bson.M{}
	if territory != "" {
		filter["REGIONAL"] = string(territory)
	}
	opts := options.Find().SetLimit(int64(limit))
	if ordered {
		opts.SetSort(bson.D{{Key: "uploadedAt", Value: -1}})
	}
	cursor, err := u.s.uploads.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	var rows []bson.M
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode uploads: %w", err)
	}
	entries := make([]domain.UploadEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, domain.UploadEntryFromPayload(fmt.Sprint(row["_id"]), plain(row)))
	}
	return entries, nil
}

func (u uploadRepository) List(ctx context.Context, territory domain.Territory, limit int) ([]domain.UploadEntry, error) {
	return u.find(ctx, territory, limit, true)
}

func (u uploadRepository) ListUnordered(ctx context.Context, territory domain.Territory, limit int) ([]domain.UploadEntry, error) {
	return u.find(ctx, territory, limit, false)
}

func (u uploadRepository) ListIDs(ctx context.Context, limit int) ([]string, error) {
	return idsOf(ctx, u.s.uploads, bson.M{}, limit)
}

func (u uploadRepository) DeleteBatch(ctx context.Context, ids []string) error {
	return u.s.deleteIDs(ctx, u.s.uploads, ids)
}

func (u uploadRepository) Delete(ctx context.Context, uploadID string) error {
	result, err := u.s.uploads.DeleteOne(ctx, bson.M{"_id": uploadID})
	if err != nil {
		return fmt.Errorf("failed to delete upload %s: %w", uploadID, err)
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}
