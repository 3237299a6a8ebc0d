package repositories

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/desertthunder/mixtape/internal/cache"
	"github.com/desertthunder/mixtape/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.OpenDatabase(shared.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func TestBlobRepository(t *testing.T) {
	t.Run("Load missing", func(t *testing.T) {
		repo := NewBlobRepository(setupTestDB(t))

		if _, err := repo.Load("nothing"); !errors.Is(err, cache.ErrNoStore) {
			t.Errorf("expected cache.ErrNoStore, got %v", err)
		}
	})

	t.Run("Save and Load", func(t *testing.T) {
		repo := NewBlobRepository(setupTestDB(t))

		if err := repo.Save("spotify", []byte{1, 2, 3}); err != nil {
			t.Fatalf("failed to save blob: %v", err)
		}

		data, err := repo.Load("spotify")
		if err != nil {
			t.Fatalf("failed to load blob: %v", err)
		}
		if len(data) != 3 || data[2] != 3 {
			t.Errorf("unexpected blob %v", data)
		}
	})

	t.Run("Save replaces", func(t *testing.T) {
		repo := NewBlobRepository(setupTestDB(t))

		repo.Save("spotify", []byte{1})
		if err := repo.Save("spotify", []byte{4, 5}); err != nil {
			t.Fatalf("failed to replace blob: %v", err)
		}

		blobs, err := repo.List()
		if err != nil {
			t.Fatalf("failed to list blobs: %v", err)
		}
		if len(blobs) != 1 {
			t.Fatalf("expected 1 blob, got %d", len(blobs))
		}
		if blobs[0].Size != 2 {
			t.Errorf("expected size 2, got %d", blobs[0].Size)
		}
		if blobs[0].SavedAt.IsZero() {
			t.Error("expected saved_at to be set")
		}
	})

	t.Run("Save requires a name", func(t *testing.T) {
		repo := NewBlobRepository(setupTestDB(t))

		if err := repo.Save("", []byte{1}); err == nil {
			t.Error("expected validation error for empty name")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		repo := NewBlobRepository(setupTestDB(t))

		repo.Save("apple_music", []byte{1})
		if err := repo.Delete("apple_music"); err != nil {
			t.Fatalf("failed to delete blob: %v", err)
		}
		if err := repo.Delete("apple_music"); err != nil {
			t.Errorf("deleting a missing blob should succeed, got %v", err)
		}
		if _, err := repo.Load("apple_music"); !errors.Is(err, cache.ErrNoStore) {
			t.Errorf("expected cache.ErrNoStore after delete, got %v", err)
		}
	})

	t.Run("Backs a cache", func(t *testing.T) {
		repo := NewBlobRepository(setupTestDB(t))

		c, err := cache.New[string]("spotify", cache.WithStore(repo))
		if err != nil {
			t.Fatalf("failed to create cache: %v", err)
		}
		c.Write("artist:1", `{"id":"1"}`)
		if err := c.Save(); err != nil {
			t.Fatalf("failed to save cache: %v", err)
		}

		reloaded, err := cache.New[string]("spotify", cache.WithStore(repo))
		if err != nil {
			t.Fatalf("failed to reload cache: %v", err)
		}
		if v, ok := reloaded.Read("artist:1"); !ok || v != `{"id":"1"}` {
			t.Errorf("unexpected cached value %q", v)
		}
	})

	t.Run("Closed database", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewBlobRepository(db)
		db.Close()

		if _, err := repo.Load("x"); err == nil || errors.Is(err, cache.ErrNoStore) {
			t.Errorf("expected a real error from a closed database, got %v", err)
		}
		if err := repo.Save("x", []byte{1}); err == nil {
			t.Error("expected error saving to a closed database")
		}
		if _, err := repo.List(); err == nil {
			t.Error("expected error listing a closed database")
		}
	})
}
