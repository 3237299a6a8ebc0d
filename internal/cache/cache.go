package cache

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixtape/internal/shared"
)

const (
	// DefaultCutoff is the base age after which entries become eligible for eviction.
	DefaultCutoff = 7 * 24 * time.Hour
	// AutosaveLimit is the number of writes an autosaving cache buffers before persisting.
	AutosaveLimit = 50
)

// EvictionMode selects how the load-time cleaning pass decides an entry has expired.
type EvictionMode int

const (
	// EvictByAge removes entries whose age exceeds their jittered cutoff.
	EvictByAge EvictionMode = iota
	// EvictLegacy removes entries whose write time, in Unix seconds, is below the jittered cutoff in seconds.
	// Real timestamps are far larger than any cutoff, so in practice nothing is evicted.
	// Kept for caches that must behave like blobs written by earlier releases.
	EvictLegacy
)

func (m EvictionMode) String() string {
	switch m {
	case EvictByAge:
		return "age"
	case EvictLegacy:
		return "legacy"
	default:
		return fmt.Sprintf("EvictionMode(%d)", int(m))
	}
}

// ParseEvictionMode maps a config value to an [EvictionMode]. The empty string means [EvictByAge].
func ParseEvictionMode(s string) (EvictionMode, error) {
	switch s {
	case "", "age":
		return EvictByAge, nil
	case "legacy":
		return EvictLegacy, nil
	default:
		return EvictByAge, fmt.Errorf("%w: eviction mode %q", shared.ErrInvalidConfig, s)
	}
}

// Cache is a named key/value store with jittered, load-time eviction.
//
// It is safe for concurrent use.
type Cache[V any] struct {
	mu      sync.Mutex
	name    string
	entries map[string]entry[V]
	dirty   int

	cutoff   time.Duration
	autosave bool
	mode     EvictionMode
	store    Store
	now      func() time.Time
	rng      *rand.Rand
	logger   *log.Logger
}

// Option configures a [Cache].
type Option func(*options)

type options struct {
	cutoff   time.Duration
	autosave bool
	mode     EvictionMode
	store    Store
	now      func() time.Time
	rng      *rand.Rand
	logger   *log.Logger
}

// WithCutoff sets the base eviction cutoff. Non-positive values keep [DefaultCutoff].
func WithCutoff(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.cutoff = d
		}
	}
}

// WithAutosave turns periodic saving on or off. It is on by default.
func WithAutosave(on bool) Option {
	return func(o *options) { o.autosave = on }
}

// WithStore sets where the cache is persisted. Without a store the cache lives in memory only.
func WithStore(s Store) Option {
	return func(o *options) { o.store = s }
}

// WithClock replaces [time.Now].
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithRand sets the random source used for eviction jitter.
func WithRand(r *rand.Rand) Option {
	return func(o *options) { o.rng = r }
}

// WithLogger sets the logger used for load and eviction messages.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithEvictionMode selects the cleaning rule.
func WithEvictionMode(m EvictionMode) Option {
	return func(o *options) { o.mode = m }
}

// New loads the named cache from its store and evicts expired entries.
func New[V any](name string, opts ...Option) (*Cache[V], error) {
	o := options{
		cutoff:   DefaultCutoff,
		autosave: true,
		mode:     EvictByAge,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if o.logger == nil {
		o.logger = log.New(io.Discard)
	}

	c := &Cache[V]{
		name:     name,
		entries:  make(map[string]entry[V]),
		cutoff:   o.cutoff,
		autosave: o.autosave,
		mode:     o.mode,
		store:    o.store,
		now:      o.now,
		rng:      o.rng,
		logger:   shared.WithLogger(o.logger, "cache", name),
	}

	c.logger.Debug("loading cache")
	if err := c.load(); err != nil {
		return nil, err
	}

	evicted := c.clean()
	c.logger.Debug("cleaned cache", "evicted", evicted, "remaining", len(c.entries))

	return c, nil
}

func (c *Cache[V]) load() error {
	if c.store == nil {
		return nil
	}

	data, err := c.store.Load(c.name)
	if errors.Is(err, ErrNoStore) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w %q: %w", shared.ErrCacheLoad, c.name, err)
	}

	entries, err := decode[V](data)
	if err != nil {
		return fmt.Errorf("%w %q: %w", shared.ErrCacheLoad, c.name, err)
	}
	c.entries = entries
	return nil
}

// clean drops expired entries and returns how many were removed.
//
// Each entry draws its own jitter factor in [0.8, 1.2). Keys are visited in sorted order so a seeded
// source evicts the same entries on every run.
func (c *Cache[V]) clean() int {
	now := c.now()
	count := 0
	for _, key := range slices.Sorted(maps.Keys(c.entries)) {
		e := c.entries[key]
		cutoff := time.Duration(float64(c.cutoff) * (0.8 + 0.4*c.rng.Float64()))

		var expired bool
		switch c.mode {
		case EvictLegacy:
			expired = float64(e.WrittenAt.Unix()) < cutoff.Seconds()
		default:
			expired = now.Sub(e.WrittenAt) > cutoff
		}

		if expired {
			delete(c.entries, key)
			count++
		}
	}
	return count
}

// Name returns the cache's name.
func (c *Cache[V]) Name() string {
	return c.name
}

// Read returns the stored value for key and whether one was found.
func (c *Cache[V]) Read(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	return e.Value, ok
}

// Write stores value under key, replacing any previous entry, and returns value.
//
// The returned error is non-nil only when an autosave was due and failed; the write itself is kept either way.
func (c *Cache[V]) Write(key string, value V) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry[V]{Value: value, WrittenAt: c.now()}
	c.dirty++

	if c.autosave && c.dirty > AutosaveLimit {
		if err := c.saveLocked(); err != nil {
			return value, err
		}
	}
	return value, nil
}

// Delete removes key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.dirty++
	}
}

// Clear drops every entry in memory. The persisted blob is untouched until the next save.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]entry[V])
	c.dirty++
}

// Len returns the number of live entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Save persists every entry to the store.
func (c *Cache[V]) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.saveLocked()
}

func (c *Cache[V]) saveLocked() error {
	if c.store == nil {
		c.dirty = 0
		return nil
	}

	data, err := encode(c.entries)
	if err != nil {
		return fmt.Errorf("%w %q: %w", shared.ErrCacheSave, c.name, err)
	}
	if err := c.store.Save(c.name, data); err != nil {
		return fmt.Errorf("%w %q: %w", shared.ErrCacheSave, c.name, err)
	}

	c.logger.Debug("saved cache", "entries", len(c.entries), "bytes", len(data))
	c.dirty = 0
	return nil
}
