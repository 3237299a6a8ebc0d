package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"time"

	"github.com/desertthunder/mixtape/internal/cache"
	"github.com/desertthunder/mixtape/internal/repositories"
	"github.com/desertthunder/mixtape/internal/shared"
	"github.com/urfave/cli/v3"
)

const (
	backendFile   = "file"
	backendSQLite = "sqlite"
)

// cacheStore is a [cache.Store] plus whatever handle has to be released after use.
type cacheStore struct {
	cache.Store
	backend  string
	location string
	files    *cache.FileStore
	blobs    *repositories.BlobRepository
	close    func() error
}

// openStore opens the backend selected by [cache] backend.
func (r *Runner) openStore() (*cacheStore, error) {
	switch r.config.Cache.Backend {
	case "", backendFile:
		files, err := cache.NewFileStore(r.config.Cache.Dir)
		if err != nil {
			return nil, err
		}
		return &cacheStore{
			Store:    files,
			backend:  backendFile,
			location: files.Root(),
			files:    files,
			close:    func() error { return nil },
		}, nil
	case backendSQLite:
		db, err := shared.OpenDatabase(r.config.Database)
		if err != nil {
			return nil, err
		}
		blobs := repositories.NewBlobRepository(db)
		return &cacheStore{
			Store:    blobs,
			backend:  backendSQLite,
			location: r.config.Database.Path,
			blobs:    blobs,
			close:    db.Close,
		}, nil
	default:
		return nil, fmt.Errorf("%w: cache backend %q", shared.ErrInvalidConfig, r.config.Cache.Backend)
	}
}

// newCache loads the named lookup cache from store with the configured eviction settings.
//
// rng drives eviction jitter; nil means an unseeded source.
func (r *Runner) newCache(name string, store cache.Store, rng *rand.Rand) (*cache.Cache[[]byte], error) {
	mode, err := cache.ParseEvictionMode(r.config.Cache.Eviction)
	if err != nil {
		return nil, err
	}
	opts := []cache.Option{
		cache.WithStore(store),
		cache.WithCutoff(r.config.CacheCutoff()),
		cache.WithAutosave(r.config.Cache.Autosave),
		cache.WithEvictionMode(mode),
		cache.WithLogger(r.logger),
	}
	if rng != nil {
		opts = append(opts, cache.WithRand(rng))
	}
	return cache.New[[]byte](name, opts...)
}

// CacheInfo describes one service's persisted lookup cache.
type CacheInfo struct {
	Service  string    `json:"service"`
	Backend  string    `json:"backend"`
	Location string    `json:"location"`
	Entries  int       `json:"entries"`
	Size     int64     `json:"size"`
	SavedAt  time.Time `json:"saved_at,omitzero"`
}

func (r *Runner) cacheInfo(store *cacheStore, name string) (CacheInfo, error) {
	info := CacheInfo{Service: name, Backend: store.backend, Location: store.location}

	switch {
	case store.files != nil:
		info.Location = store.files.Path(name)
		stat, err := os.Stat(info.Location)
		if errors.Is(err, fs.ErrNotExist) {
			return info, nil
		}
		if err != nil {
			return info, fmt.Errorf("failed to stat cache file: %w", err)
		}
		info.Size = stat.Size()
		info.SavedAt = stat.ModTime()
	case store.blobs != nil:
		blobs, err := store.blobs.List()
		if err != nil {
			return info, err
		}
		found := false
		for _, b := range blobs {
			if b.Name == name {
				info.Size = int64(b.Size)
				info.SavedAt = b.SavedAt
				found = true
			}
		}
		if !found {
			return info, nil
		}
	}

	c, err := r.newCache(name, store, nil)
	if err != nil {
		return info, err
	}
	info.Entries = c.Len()
	return info, nil
}

// CacheShow prints the size and age of each service's lookup cache.
func (r *Runner) CacheShow(ctx context.Context, cmd *cli.Command) error {
	store, err := r.openStore()
	if err != nil {
		return err
	}
	defer store.close()

	infos := make([]CacheInfo, 0, len(r.registry))
	for _, name := range r.registry.Names() {
		info, err := r.cacheInfo(store, name)
		if err != nil {
			return fmt.Errorf("failed to inspect %s cache: %w", name, err)
		}
		infos = append(infos, info)
	}

	if cmd.Bool("json") {
		return r.writeJSON(infos, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Lookup caches (%s)", store.backend))
	for _, info := range infos {
		if info.SavedAt.IsZero() {
			r.writePlain("%-12s empty\n", info.Service)
			continue
		}
		r.writePlain("%-12s %d entries, %d bytes, saved %s\n",
			info.Service, info.Entries, info.Size, info.SavedAt.Format(time.RFC3339))
	}
	return r.writePlain("\nLocation: %s\n", store.location)
}

// CacheClear deletes the persisted lookup caches of the selected services.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
	names := cmd.StringSlice("service")
	if len(names) == 0 {
		names = r.registry.Names()
	}

	store, err := r.openStore()
	if err != nil {
		return err
	}
	defer store.close()

	for _, name := range names {
		if _, ok := r.registry[name]; !ok {
			return fmt.Errorf("%w: %s", shared.ErrUnknownService, name)
		}
		if err := store.Delete(name); err != nil {
			return fmt.Errorf("failed to clear %s cache: %w", name, err)
		}
		r.logger.Info("cleared cache", "service", name, "backend", store.backend)
		r.writePlain("✓ Cleared %s cache\n", name)
	}
	return nil
}
