package cache

import (
	"errors"
	"fmt"
	"maps"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/desertthunder/mixtape/internal/shared"
)

type memoryStore struct {
	blobs map[string][]byte
	saves int
	err   error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{blobs: make(map[string][]byte)}
}

func (s *memoryStore) Load(name string) ([]byte, error) {
	data, ok := s.blobs[name]
	if !ok {
		return nil, ErrNoStore
	}
	return data, nil
}

func (s *memoryStore) Save(name string, data []byte) error {
	if s.err != nil {
		return s.err
	}
	s.saves++
	s.blobs[name] = data
	return nil
}

func (s *memoryStore) Delete(name string) error {
	delete(s.blobs, name)
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

func TestCache(t *testing.T) {
	t.Run("Read missing key", func(t *testing.T) {
		c, err := New[string]("empty")
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if v, ok := c.Read("nope"); ok || v != "" {
			t.Errorf("expected absent, got %q", v)
		}
	})

	t.Run("Write overwrites and returns value", func(t *testing.T) {
		c, _ := New[int]("ints")
		if v, err := c.Write("k", 1); err != nil || v != 1 {
			t.Fatalf("Write() = %d, %v", v, err)
		}
		c.Write("k", 2)
		if v, _ := c.Read("k"); v != 2 {
			t.Errorf("expected 2, got %d", v)
		}
		if c.Len() != 1 {
			t.Errorf("expected 1 entry, got %d", c.Len())
		}
	})

	t.Run("Round trip", func(t *testing.T) {
		store := newMemoryStore()
		first, err := New[[]string]("lookups", WithStore(store))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		first.Write("k", []string{"a", "b"})
		if err := first.Save(); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		second, err := New[[]string]("lookups", WithStore(store))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		got, ok := second.Read("k")
		if !ok || len(got) != 2 || got[0] != "a" || got[1] != "b" {
			t.Errorf("expected [a b], got %v (found=%v)", got, ok)
		}
	})

	t.Run("Delete and Clear", func(t *testing.T) {
		c, _ := New[int]("ints")
		c.Write("a", 1)
		c.Write("b", 2)
		c.Delete("a")
		if _, ok := c.Read("a"); ok {
			t.Error("expected a to be deleted")
		}
		c.Clear()
		if c.Len() != 0 {
			t.Errorf("expected empty cache, got %d entries", c.Len())
		}
	})
}

func TestEviction(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	populate := func(t *testing.T, store Store) {
		t.Helper()
		clk := &clock{t: start}
		c, err := New[string]("evict", WithStore(store), WithClock(clk.now))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		c.Write("old", "x")
		clk.t = start.Add(9 * 24 * time.Hour)
		c.Write("fresh", "y")
		if err := c.Save(); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	t.Run("By age", func(t *testing.T) {
		store := newMemoryStore()
		populate(t, store)

		// 10 days after the first write: "old" is 10d old (beyond 7d * 1.2), "fresh" is 1d old (under 7d * 0.8).
		for seed := range uint64(20) {
			clk := &clock{t: start.Add(10 * 24 * time.Hour)}
			c, err := New[string]("evict", WithStore(store), WithClock(clk.now), WithRand(seeded(seed)))
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if _, ok := c.Read("old"); ok {
				t.Errorf("seed %d: expected old entry to be evicted", seed)
			}
			if _, ok := c.Read("fresh"); !ok {
				t.Errorf("seed %d: expected fresh entry to survive", seed)
			}
		}
	})

	t.Run("Custom cutoff", func(t *testing.T) {
		store := newMemoryStore()
		populate(t, store)

		clk := &clock{t: start.Add(10 * 24 * time.Hour)}
		c, err := New[string]("evict", WithStore(store), WithClock(clk.now), WithCutoff(30*24*time.Hour))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if c.Len() != 2 {
			t.Errorf("expected both entries under a 30 day cutoff, got %d", c.Len())
		}
	})

	t.Run("Legacy keeps real timestamps", func(t *testing.T) {
		store := newMemoryStore()
		populate(t, store)

		clk := &clock{t: start.Add(365 * 24 * time.Hour)}
		c, err := New[string]("evict", WithStore(store), WithClock(clk.now), WithEvictionMode(EvictLegacy))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if c.Len() != 2 {
			t.Errorf("expected legacy mode to keep both entries, got %d", c.Len())
		}
	})

	t.Run("Seeded jitter evicts the same keys", func(t *testing.T) {
		store := newMemoryStore()
		clk := &clock{t: start}
		c, _ := New[int]("jitter", WithStore(store), WithClock(clk.now), WithAutosave(false))
		for i := range 200 {
			c.Write(fmt.Sprintf("key-%03d", i), i)
		}
		if err := c.Save(); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		// At exactly the base cutoff roughly half the entries fall on each side of their jittered cutoff.
		survivors := func() []string {
			clk := &clock{t: start.Add(DefaultCutoff)}
			c, err := New[int]("jitter", WithStore(store), WithClock(clk.now), WithRand(seeded(7)))
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			return slices.Sorted(maps.Keys(c.entries))
		}

		first, second := survivors(), survivors()
		if len(first) == 0 || len(first) == 200 {
			t.Fatalf("expected a partial eviction, got %d survivors", len(first))
		}
		if !slices.Equal(first, second) {
			t.Errorf("expected identical survivors for the same seed, got %d and %d keys", len(first), len(second))
		}
	})

	t.Run("Legacy evicts epoch timestamps", func(t *testing.T) {
		store := newMemoryStore()
		clk := &clock{t: time.Unix(60, 0)}
		c, _ := New[string]("epoch", WithStore(store), WithClock(clk.now))
		c.Write("k", "v")
		c.Save()

		reloaded, err := New[string]("epoch", WithStore(store), WithEvictionMode(EvictLegacy))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if reloaded.Len() != 0 {
			t.Error("expected an entry written a minute after the epoch to be evicted")
		}
	})
}

func TestAutosave(t *testing.T) {
	t.Run("Saves after the limit", func(t *testing.T) {
		store := newMemoryStore()
		c, _ := New[int]("auto", WithStore(store))

		for i := range AutosaveLimit {
			c.Write("k", i)
		}
		if store.saves != 0 {
			t.Fatalf("expected no save before the limit, got %d", store.saves)
		}

		c.Write("k", AutosaveLimit)
		if store.saves != 1 {
			t.Fatalf("expected one save after %d writes, got %d", AutosaveLimit+1, store.saves)
		}

		for i := range AutosaveLimit {
			c.Write("k", i)
		}
		if store.saves != 1 {
			t.Errorf("expected the counter to reset after a save, got %d saves", store.saves)
		}
	})

	t.Run("Disabled", func(t *testing.T) {
		store := newMemoryStore()
		c, _ := New[int]("manual", WithStore(store), WithAutosave(false))
		for i := range 3 * AutosaveLimit {
			c.Write("k", i)
		}
		if store.saves != 0 {
			t.Errorf("expected no saves, got %d", store.saves)
		}
	})

	t.Run("Failure surfaces from Write", func(t *testing.T) {
		store := newMemoryStore()
		store.err = errors.New("disk full")
		c, _ := New[int]("broken", WithStore(store))

		var err error
		for i := 0; i <= AutosaveLimit; i++ {
			_, err = c.Write("k", i)
		}
		if !errors.Is(err, shared.ErrCacheSave) {
			t.Errorf("expected ErrCacheSave, got %v", err)
		}
		if v, ok := c.Read("k"); !ok || v != AutosaveLimit {
			t.Error("expected the write to be kept when autosave fails")
		}
	})
}

func TestPersistenceErrors(t *testing.T) {
	t.Run("Corrupt blob", func(t *testing.T) {
		store := newMemoryStore()
		store.blobs["bad"] = []byte("not gzip")

		if _, err := New[string]("bad", WithStore(store)); !errors.Is(err, shared.ErrCacheLoad) {
			t.Errorf("expected ErrCacheLoad, got %v", err)
		}
	})

	t.Run("Save failure", func(t *testing.T) {
		store := newMemoryStore()
		store.err = errors.New("permission denied")
		c, _ := New[string]("ro", WithStore(store))
		c.Write("k", "v")

		if err := c.Save(); !errors.Is(err, shared.ErrCacheSave) {
			t.Errorf("expected ErrCacheSave, got %v", err)
		}
	})
}

func TestFileStore(t *testing.T) {
	t.Run("Missing file starts empty", func(t *testing.T) {
		store, err := NewFileStore(filepath.Join(t.TempDir(), "nested", "dir"))
		if err != nil {
			t.Fatalf("NewFileStore() error = %v", err)
		}
		c, err := New[string]("absent", WithStore(store))
		if err != nil {
			t.Fatalf("expected missing file to be fine, got %v", err)
		}
		if c.Len() != 0 {
			t.Error("expected empty cache")
		}
	})

	t.Run("Round trip creates directories", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "a", "b")
		store, _ := NewFileStore(root)

		c, _ := New[map[string]int]("counts", WithStore(store))
		c.Write("k", map[string]int{"x": 1})
		if err := c.Save(); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		if _, err := os.Stat(store.Path("counts")); err != nil {
			t.Fatalf("expected cache file, got %v", err)
		}

		reloaded, err := New[map[string]int]("counts", WithStore(store))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if v, ok := reloaded.Read("k"); !ok || v["x"] != 1 {
			t.Errorf("unexpected value %v", v)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		store, _ := NewFileStore(t.TempDir())
		if err := store.Save("gone", []byte("x")); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if err := store.Delete("gone"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if err := store.Delete("gone"); err != nil {
			t.Errorf("deleting twice should be fine, got %v", err)
		}
		if _, err := store.Load("gone"); !errors.Is(err, ErrNoStore) {
			t.Errorf("expected ErrNoStore, got %v", err)
		}
	})
}

func TestParseEvictionMode(t *testing.T) {
	tc := []struct {
		in      string
		want    EvictionMode
		wantErr bool
	}{
		{in: "", want: EvictByAge},
		{in: "age", want: EvictByAge},
		{in: "legacy", want: EvictLegacy},
		{in: "never", wantErr: true},
	}

	for _, tt := range tc {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEvictionMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseEvictionMode() error = %v", err)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
