package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rpattn/reiteradas/internal/db"
	"github.com/rpattn/reiteradas/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type uploadRepository struct {
	conn *db.Connection
}

// NewUploadRepository wires the upload ledger backed by pgxpool.
func NewUploadRepository(conn *db.Connection) UploadRepository {
	return &uploadRepository{conn: conn}
}

func (r *uploadRepository) Upsert(ctx context.Context, entry domain.UploadEntry) error {
	if r.conn == nil || r.conn.Pool == nil {
		return fmt.Errorf("upload repository not initialized")
	}

	payload, err := json.Marshal(entry.Payload())
	if err != nil {
		return fmt.Errorf("failed to encode upload %s: %w", entry.UploadID, err)
	}

	_, err = r.conn.Pool.Exec(
		ctx,
		`INSERT INTO uploads (id, regional, payload, uploaded_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (id) DO UPDATE SET
		   regional = EXCLUDED.regional,
		   payload = uploads.payload || EXCLUDED.payload,
		   uploaded_at = EXCLUDED.uploaded_at`,
		entry.UploadID,
		string(entry.Territory),
		payload,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert upload %s: %w", entry.UploadID, err)
	}
	return nil
}

func (r *uploadRepository) Get(ctx context.Context, uploadID string) (domain.UploadEntry, error) {
	if r.conn == nil || r.conn.Pool == nil {
		return domain.UploadEntry{}, fmt.Errorf("upload repository not initialized")
	}

	var (
		payload    []byte
		uploadedAt pgtype.Timestamptz
	)
	err := r.conn.Pool.QueryRow(ctx, `SELECT payload, uploaded_at FROM uploads WHERE id = $1`, uploadID).Scan(&payload, &uploadedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UploadEntry{}, ErrNotFound
		}
		return domain.UploadEntry{}, fmt.Errorf("failed to get upload %s: %w", uploadID, err)
	}
	return decodeUpload(uploadID, payload, uploadedAt)
}

func (r *uploadRepository) List(ctx context.Context, territory domain.Territory, limit int) ([]domain.UploadEntry, error) {
	return r.list(ctx, territory, limit, true)
}

func (r *uploadRepository) ListUnordered(ctx context.Context, territory domain.Territory, limit int) ([]domain.UploadEntry, error) {
	return r.list(ctx, territory, limit, false)
}

func (r *uploadRepository) list(ctx context.Context, territory domain.Territory, limit int, ordered bool) ([]domain.UploadEntry, error) {
	if r.conn == nil || r.conn.Pool == nil {
		return nil, fmt.Errorf("upload repository not initialized")
	}
	if limit <= 0 || limit > domain.DefaultQueryLimit {
		limit = domain.DefaultQueryLimit
	}

	query := `SELECT id, payload, uploaded_at FROM uploads WHERE ($1 = '' OR regional = $1)`
	if ordered {
		query += ` ORDER BY uploaded_at DESC`
	}
	query += ` LIMIT $2`

	rows, err := r.conn.Pool.Query(ctx, query, string(territory), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer rows.Close()

	entries := []domain.UploadEntry{}
	for rows.Next() {
		var (
			id         string
			payload    []byte
			uploadedAt pgtype.Timestamptz
		)
		if scanErr := rows.Scan(&id, &payload, &uploadedAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", scanErr)
		}
		entry, err := decodeUpload(id, payload, uploadedAt)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate uploads: %w", rowsErr)
	}
	return entries, nil
}

func (r *uploadRepository) ListIDs(ctx context.Context, limit int) ([]string, error) {
	if r.conn == nil || r.conn.Pool == nil {
		return nil, fmt.Errorf("upload repository not initialized")
	}
	rows, err := r.conn.Pool.Query(ctx, `SELECT id FROM uploads LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list upload ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan upload ids: %w", err)
	}
	return ids, nil
}

func (r *uploadRepository) DeleteBatch(ctx context.Context, ids []string) error {
	if r.conn == nil || r.conn.Pool == nil {
		return fmt.Errorf("upload repository not initialized")
	}
	if len(ids) == 0 {
		return nil
	}
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM uploads WHERE id = ANY($1)`, ids); err != nil {
			return fmt.Errorf("failed to delete upload batch: %w", err)
		}
		return nil
	})
}

func (r *uploadRepository) Delete(ctx context.Context, uploadID string) error {
	if r.conn == nil || r.conn.Pool == nil {
		return fmt.Errorf("upload repository not initialized")
	}
	if _, err := r.conn.Pool.Exec(ctx, `DELETE FROM uploads WHERE id = $1`, uploadID); err != nil {
		return fmt.Errorf("failed to delete upload %s: %w", uploadID, err)
	}
	return nil
}

func decodeUpload(id string, payload []byte, uploadedAt pgtype.Timestamptz) (domain.UploadEntry, error) {
	fields := map[string]any{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &fields); err != nil {
			return domain.UploadEntry{}, fmt.Errorf("failed to decode upload %s: %w", id, err)
		}
	}
	if uploadedAt.Valid {
		fields["uploadedAt"] = uploadedAt.Time
	}
	return domain.UploadEntryFromPayload(id, fields), nil
}

type postgresStore struct {
	conn    *db.Connection
	records RecordRepository
	uploads UploadRepository
}

// NewPostgresStore bundles the pgx repositories behind the Store interface.
func NewPostgresStore(conn *db.Connection) Store {
	return &postgresStore{
		conn:    conn,
		records: NewRecordRepository(conn),
		uploads: NewUploadRepository(conn),
	}
}

func (s *postgresStore) Records() RecordRepository { return s.records }
func (s *postgresStore) Uploads() UploadRepository { return s.uploads }

func (s *postgresStore) Close(ctx context.Context) error {
	s.conn.Close()
	return nil
}
