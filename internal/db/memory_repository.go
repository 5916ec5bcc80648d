package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrEntryNotFound is returned when a bucket has no entry for a key.
var ErrEntryNotFound = errors.New("memory entry not found")

// MemoryRepository stores JSON documents grouped into buckets.
type MemoryRepository struct {
	db *DB
}

// NewMemoryRepository creates a new MemoryRepository.
func NewMemoryRepository(db *DB) *MemoryRepository {
	return &MemoryRepository{db: db}
}

// Put stores value under bucket/key, replacing any previous entry.
func (r *MemoryRepository) Put(ctx context.Context, bucket, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", bucket, key, err)
	}
	return r.db.TransactionWithRetry(ctx, 0, 0, func(tx *sql.Tx) error {
		return putEntry(ctx, tx, bucket, key, payload)
	})
}

// Get decodes the entry at bucket/key into dst.
func (r *MemoryRepository) Get(ctx context.Context, bucket, key string, dst any) error {
	var payload []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT payload FROM memory_entries WHERE bucket = ? AND key = ?`, bucket, key,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrEntryNotFound
	}
	if err != nil {
		return fmt.Errorf("read %s/%s: %w", bucket, key, err)
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("decode %s/%s: %w", bucket, key, err)
	}
	return nil
}

// List returns the raw payloads of a bucket keyed by entry key.
func (r *MemoryRepository) List(ctx context.Context, bucket string) (map[string]json.RawMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT key, payload FROM memory_entries WHERE bucket = ? ORDER BY key`, bucket)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", bucket, err)
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var key string
		var payload []byte
		if err := rows.Scan(&key, &payload); err != nil {
			return nil, fmt.Errorf("scan %s: %w", bucket, err)
		}
		out[key] = json.RawMessage(payload)
	}
	return out, rows.Err()
}

// ReplaceBucket swaps the whole content of bucket for entries in one
// transaction.
func (r *MemoryRepository) ReplaceBucket(ctx context.Context, bucket string, entries map[string]any) error {
	encoded := make(map[string][]byte, len(entries))
	for key, value := range entries {
		payload, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshal %s/%s: %w", bucket, key, err)
		}
		encoded[key] = payload
	}

	return r.db.TransactionWithRetry(ctx, 0, 0, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM memory_entries WHERE bucket = ?`, bucket); err != nil {
			return fmt.Errorf("clear %s: %w", bucket, err)
		}
		for key, payload := range encoded {
			if err := putEntry(ctx, tx, bucket, key, payload); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteBucket removes every entry of bucket.
func (r *MemoryRepository) DeleteBucket(ctx context.Context, bucket string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM memory_entries WHERE bucket = ?`, bucket); err != nil {
		return fmt.Errorf("delete %s: %w", bucket, err)
	}
	return nil
}

func putEntry(ctx context.Context, tx *sql.Tx, bucket, key string, payload []byte) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO memory_entries (bucket, key, payload, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (bucket, key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
	`, bucket, key, payload, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("write %s/%s: %w", bucket, key, err)
	}
	return nil
}
