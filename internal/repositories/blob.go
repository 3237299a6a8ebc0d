package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/mixtape/internal/cache"
)

// BlobInfo describes one persisted cache without its payload.
type BlobInfo struct {
	Name    string
	Size    int
	SavedAt time.Time
}

// BlobRepository implements [cache.Store] on the cache_blobs table.
//
// Each cache name owns exactly one row; saving replaces the row in place.
type BlobRepository struct {
	db *sql.DB
}

// NewBlobRepository creates a new BlobRepository with the given database connection
func NewBlobRepository(db *sql.DB) *BlobRepository {
	return &BlobRepository{db: db}
}

// Load returns the blob saved under name, or [cache.ErrNoStore] when there is none
func (r *BlobRepository) Load(name string) ([]byte, error) {
	var data []byte
	err := r.db.QueryRow("SELECT data FROM cache_blobs WHERE name = ?", name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cache.ErrNoStore
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cache blob: %w", err)
	}
	return data, nil
}

// Save inserts or replaces the blob for name
func (r *BlobRepository) Save(name string, data []byte) error {
	if name == "" {
		return fmt.Errorf("validation failed: cache name is required")
	}

	query := `
		INSERT INTO cache_blobs (name, data, size, saved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET data = excluded.data, size = excluded.size, saved_at = excluded.saved_at
	`

	if _, err := r.db.Exec(query, name, data, len(data), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save cache blob: %w", err)
	}
	return nil
}

// Delete removes the blob for name. Deleting a missing blob is not an error.
func (r *BlobRepository) Delete(name string) error {
	if _, err := r.db.Exec("DELETE FROM cache_blobs WHERE name = ?", name); err != nil {
		return fmt.Errorf("failed to delete cache blob: %w", err)
	}
	return nil
}

// List returns every stored blob ordered by name
func (r *BlobRepository) List() ([]BlobInfo, error) {
	rows, err := r.db.Query("SELECT name, size, saved_at FROM cache_blobs ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list cache blobs: %w", err)
	}
	defer rows.Close()

	blobs := []BlobInfo{}
	for rows.Next() {
		var b BlobInfo
		if err := rows.Scan(&b.Name, &b.Size, &b.SavedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cache blob: %w", err)
		}
		blobs = append(blobs, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cache blobs: %w", err)
	}
	return blobs, nil
}

var _ cache.Store = (*BlobRepository)(nil)
