package tasks

import (
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/desertthunder/mixtape/internal/shared"
)

func playlistsOf(sizes map[string]int, order ...string) []ArtistPlaylist {
	out := make([]ArtistPlaylist, 0, len(order))
	for _, id := range order {
		ids := make([]string, 0, sizes[id])
		for i := range sizes[id] {
			ids = append(ids, fmt.Sprintf("%s-%d", id, i))
		}
		out = append(out, ArtistPlaylist{ArtistID: id, TrackIDs: ids})
	}
	return out
}

func TestSpread(t *testing.T) {
	t.Run("Completeness", func(t *testing.T) {
		playlists := []ArtistPlaylist{
			{ArtistID: "a", TrackIDs: []string{"a1", "shared"}},
			{ArtistID: "b", TrackIDs: []string{"b1", "shared", "b2"}},
			{ArtistID: "c", TrackIDs: []string{"c1"}},
		}

		for seed := range uint64(100) {
			got, err := NewSpreader(seeded(seed)).Spread(playlists, nil)
			if err != nil {
				t.Fatalf("seed %d: Spread() error = %v", seed, err)
			}

			sorted := slices.Clone(got)
			slices.Sort(sorted)
			if want := []string{"a1", "b1", "b2", "c1", "shared"}; !slices.Equal(sorted, want) {
				t.Fatalf("seed %d: expected %v, got %v", seed, want, got)
			}
		}
	})

	t.Run("Keeps each artist's order", func(t *testing.T) {
		playlists := playlistsOf(map[string]int{"a": 15, "b": 4, "c": 9, "d": 1}, "a", "b", "c", "d")

		for seed := range uint64(50) {
			got, err := NewSpreader(seeded(seed)).Spread(playlists, []string{"c"})
			if err != nil {
				t.Fatalf("Spread() error = %v", err)
			}
			if len(got) != 29 {
				t.Fatalf("seed %d: expected 29 tracks, got %d", seed, len(got))
			}

			for _, p := range playlists {
				var positions []int
				for _, id := range p.TrackIDs {
					positions = append(positions, slices.Index(got, id))
				}
				if !slices.IsSorted(positions) {
					t.Errorf("seed %d: artist %s out of order: %v", seed, p.ArtistID, positions)
				}
			}
		}
	})

	t.Run("Deterministic under a fixed seed", func(t *testing.T) {
		playlists := playlistsOf(map[string]int{"a": 5, "b": 15, "c": 8, "v": 3}, "a", "b", "c", "v")

		first, err := NewSpreader(seeded(99)).Spread(playlists, []string{"v"})
		if err != nil {
			t.Fatalf("Spread() error = %v", err)
		}
		second, _ := NewSpreader(seeded(99)).Spread(playlists, []string{"v"})
		if !slices.Equal(first, second) {
			t.Errorf("expected identical output:\n%v\n%v", first, second)
		}
	})

	t.Run("VIPs come first on average", func(t *testing.T) {
		sizes := map[string]int{}
		order := []string{}
		for i := range 20 {
			id := fmt.Sprintf("artist%02d", i)
			sizes[id] = 5
			order = append(order, id)
		}
		sizes["vip"] = 5
		order = append(order, "vip")
		playlists := playlistsOf(sizes, order...)

		const trials = 200
		var vipSum, peerSum int
		for seed := range uint64(trials) {
			got, err := NewSpreader(seeded(seed)).Spread(playlists, []string{"vip"})
			if err != nil {
				t.Fatalf("Spread() error = %v", err)
			}
			vipSum += slices.Index(got, "vip-0")
			peerSum += slices.Index(got, "artist00-0")
		}

		vipMean, peerMean := float64(vipSum)/trials, float64(peerSum)/trials
		if vipMean >= peerMean {
			t.Errorf("expected VIP mean first index %.2f below peer mean %.2f", vipMean, peerMean)
		}
	})

	t.Run("Unknown VIPs are ignored", func(t *testing.T) {
		playlists := playlistsOf(map[string]int{"a": 2, "b": 2}, "a", "b")
		got, err := NewSpreader(seeded(1)).Spread(playlists, []string{"ghost", "b"})
		if err != nil {
			t.Fatalf("Spread() error = %v", err)
		}
		if len(got) != 4 {
			t.Errorf("expected 4 tracks, got %v", got)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		got, err := NewSpreader(seeded(1)).Spread(nil, []string{"v"})
		if err != nil || got == nil || len(got) != 0 {
			t.Errorf("expected empty result, got %v, %v", got, err)
		}

		got, err = NewSpreader(seeded(1)).Spread([]ArtistPlaylist{{ArtistID: "a"}, {ArtistID: "b", TrackIDs: []string{"b1"}}}, nil)
		if err != nil || !slices.Equal(got, []string{"b1"}) {
			t.Errorf("expected artists without tracks to be skipped, got %v, %v", got, err)
		}
	})

	t.Run("Duplicate artist", func(t *testing.T) {
		playlists := playlistsOf(map[string]int{"a": 2}, "a", "a")
		if _, err := NewSpreader(seeded(1)).Spread(playlists, nil); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Empty track ID cannot be placed", func(t *testing.T) {
		playlists := []ArtistPlaylist{{ArtistID: "a", TrackIDs: []string{"", "a1"}}}
		if _, err := NewSpreader(seeded(1)).Spread(playlists, nil); !errors.Is(err, shared.ErrInvariantViolation) {
			t.Errorf("expected ErrInvariantViolation, got %v", err)
		}
	})
}

func TestPlace(t *testing.T) {
	s := NewSpreader(seeded(5))

	t.Run("Fills every slot when there is no room", func(t *testing.T) {
		slots, last, err := s.place([]string{"a", "b", "c"}, 3)
		if err != nil {
			t.Fatalf("place() error = %v", err)
		}
		if !slices.Equal(slots, []string{"a", "b", "c"}) || last != 2 {
			t.Errorf("unexpected slots %q (last %d)", slots, last)
		}
	})

	t.Run("Spaces tracks out", func(t *testing.T) {
		slots, last, err := s.place([]string{"a", "b"}, 20)
		if err != nil {
			t.Fatalf("place() error = %v", err)
		}
		if slots[0] != "a" {
			t.Errorf("expected first track in the first slot, got %q", slots)
		}
		if gap := slices.Index(slots, "b"); gap < 8 || gap > 12 {
			t.Errorf("expected b near the middle, got index %d", gap)
		}
		if slots[last] != "b" {
			t.Errorf("expected last to point at b, got %d", last)
		}
	})
}

func TestShift(t *testing.T) {
	tests := []struct {
		name   string
		slots  []string
		offset int
		last   int
		want   []string
	}{
		{name: "within slack", slots: []string{"a", "", "b", "", ""}, offset: 1, last: 2, want: []string{"", "a", "", "b", ""}},
		{name: "clamped to slack", slots: []string{"a", "", "b", ""}, offset: 5, last: 2, want: []string{"", "a", "", "b"}},
		{name: "no slack", slots: []string{"a", "b"}, offset: 3, last: 1, want: []string{"a", "b"}},
		{name: "zero offset", slots: []string{"a", ""}, offset: 0, last: 0, want: []string{"a", ""}},
		{name: "nothing placed", slots: []string{"", ""}, offset: 1, last: -1, want: []string{"", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shift(tt.slots, tt.offset, tt.last); !slices.Equal(got, tt.want) {
				t.Errorf("shift() = %q, want %q", got, tt.want)
			}
		})
	}
}
