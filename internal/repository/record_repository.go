package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rpattn/reiteradas/internal/db"
	"github.com/rpattn/reiteradas/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const upsertRecordSQL = `INSERT INTO records (id, upload_id, row_index, regional, fields, created_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (id) DO UPDATE SET
	upload_id = EXCLUDED.upload_id,
	row_index = EXCLUDED.row_index,
	regional = EXCLUDED.regional,
	fields = records.fields || EXCLUDED.fields,
	created_at = EXCLUDED.created_at`

type recordRepository struct {
	conn *db.Connection
}

// NewRecordRepository wires a record repository backed by pgxpool.
func NewRecordRepository(conn *db.Connection) RecordRepository {
	return &recordRepository{conn: conn}
}

func (r *recordRepository) UpsertBatch(ctx context.Context, docs []domain.RecordDocument) error {
	if r.conn == nil || r.conn.Pool == nil {
		return fmt.Errorf("record repository not initialized")
	}
	if len(docs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, doc := range docs {
		fields, err := json.Marshal(doc.Fields)
		if err != nil {
			return fmt.Errorf("failed to encode record %s: %w", doc.ID, err)
		}
		batch.Queue(upsertRecordSQL, doc.ID, doc.UploadID, doc.RowIndex, string(doc.Territory), fields)
	}

	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to upsert record batch: %w", err)
		}
		return nil
	})
}

func (r *recordRepository) ListIDsByUpload(ctx context.Context, uploadID string, limit int) ([]string, error) {
	return r.listIDs(ctx, `SELECT id FROM records WHERE upload_id = $1 ORDER BY row_index LIMIT $2`, uploadID, limit)
}

func (r *recordRepository) ListIDs(ctx context.Context, limit int) ([]string, error) {
	return r.listIDs(ctx, `SELECT id FROM records LIMIT $1`, limit)
}

func (r *recordRepository) listIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	if r.conn == nil || r.conn.Pool == nil {
		return nil, fmt.Errorf("record repository not initialized")
	}
	rows, err := r.conn.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list record ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan record ids: %w", err)
	}
	return ids, nil
}

func (r *recordRepository) DeleteBatch(ctx context.Context, ids []string) error {
	if r.conn == nil || r.conn.Pool == nil {
		return fmt.Errorf("record repository not initialized")
	}
	if len(ids) == 0 {
		return nil
	}
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM records WHERE id = ANY($1)`, ids); err != nil {
			return fmt.Errorf("failed to delete record batch: %w", err)
		}
		return nil
	})
}

func (r *recordRepository) Query(ctx context.Context, filter domain.RecordFilter) ([]domain.RecordDocument, error) {
	if r.conn == nil || r.conn.Pool == nil {
		return nil, fmt.Errorf("record repository not initialized")
	}

	rows, err := r.conn.Pool.Query(
		ctx,
		`SELECT id, upload_id, row_index, regional, fields, created_at
		 FROM records
		 WHERE regional = $1
		   AND ($2 = '' OR fields->>'DATA' >= $2)
		   AND ($3 = '' OR fields->>'DATA' <= $3)
		 ORDER BY fields->>'DATA' DESC
		 LIMIT $4`,
		string(filter.Territory),
		filter.From,
		filter.To,
		filter.EffectiveLimit(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	docs := []domain.RecordDocument{}
	for rows.Next() {
		var (
			doc       domain.RecordDocument
			territory string
			fields    []byte
			createdAt pgtype.Timestamptz
		)
		if scanErr := rows.Scan(&doc.ID, &doc.UploadID, &doc.RowIndex, &territory, &fields, &createdAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan record: %w", scanErr)
		}
		doc.Territory = domain.Territory(territory)
		doc.Fields = domain.Record{}
		if len(fields) > 0 {
			if err := json.Unmarshal(fields, &doc.Fields); err != nil {
				return nil, fmt.Errorf("failed to decode record %s: %w", doc.ID, err)
			}
		}
		if createdAt.Valid {
			doc.CreatedAt = createdAt.Time
		}
		docs = append(docs, doc)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", rowsErr)
	}

	return docs, nil
}
