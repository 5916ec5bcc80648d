package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tOgg1/hangview/internal/db"
)

// inDisplayKey is the single entry of BucketInDisplay.
const inDisplayKey = "uids"

// SQLiteBackend stores memory buckets in the hangview database.
type SQLiteBackend struct {
	repo *db.MemoryRepository
}

// NewSQLiteBackend creates a backend over repo.
func NewSQLiteBackend(repo *db.MemoryRepository) *SQLiteBackend {
	return &SQLiteBackend{repo: repo}
}

// Load reads every bucket.
func (b *SQLiteBackend) Load(ctx context.Context) (Snapshot, error) {
	snap := NewSnapshot()
	if err := loadBucket(ctx, b.repo, BucketGrids, snap.Grids); err != nil {
		return Snapshot{}, err
	}
	if err := loadBucket(ctx, b.repo, BucketStages, snap.Stages); err != nil {
		return Snapshot{}, err
	}
	if err := loadBucket(ctx, b.repo, BucketSelectors, snap.Selectors); err != nil {
		return Snapshot{}, err
	}
	if err := loadBucket(ctx, b.repo, BucketToggles, snap.Toggles); err != nil {
		return Snapshot{}, err
	}
	if err := loadBucket(ctx, b.repo, BucketPositions, snap.Positions); err != nil {
		return Snapshot{}, err
	}
	err := b.repo.Get(ctx, BucketInDisplay, inDisplayKey, &snap.InDisplay)
	if err != nil && !errors.Is(err, db.ErrEntryNotFound) {
		return Snapshot{}, err
	}
	return snap, nil
}

func loadBucket[V any](ctx context.Context, repo *db.MemoryRepository, bucket string, dst map[string]V) error {
	raw, err := repo.List(ctx, bucket)
	if err != nil {
		return err
	}
	for key, payload := range raw {
		var v V
		if err := json.Unmarshal(payload, &v); err != nil {
			return fmt.Errorf("decode %s/%s: %w", bucket, key, err)
		}
		dst[key] = v
	}
	return nil
}

// Save rewrites the named buckets from snap.
func (b *SQLiteBackend) Save(ctx context.Context, snap Snapshot, buckets []string) error {
	for _, bucket := range buckets {
		var entries map[string]any
		switch bucket {
		case BucketGrids:
			entries = toEntries(snap.Grids)
		case BucketStages:
			entries = toEntries(snap.Stages)
		case BucketSelectors:
			entries = toEntries(snap.Selectors)
		case BucketToggles:
			entries = toEntries(snap.Toggles)
		case BucketPositions:
			entries = toEntries(snap.Positions)
		case BucketInDisplay:
			entries = map[string]any{inDisplayKey: snap.InDisplay}
		default:
			return fmt.Errorf("unknown memory bucket %q", bucket)
		}
		if err := b.repo.ReplaceBucket(ctx, bucket, entries); err != nil {
			return err
		}
	}
	return nil
}

func toEntries[V any](m map[string]V) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
