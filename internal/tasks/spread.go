package tasks

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/desertthunder/mixtape/internal/shared"
)

const (
	// MaxOffset is the largest random shift applied to a non-VIP artist's slots.
	MaxOffset = 20

	vipWindowStart = 0.05
	vipWindowEnd   = 0.15
)

// ArtistPlaylist is one artist's curated track IDs, in order.
type ArtistPlaylist struct {
	ArtistID string   `json:"artist_id"`
	TrackIDs []string `json:"track_ids"`
}

// Spreader merges per-artist playlists so no artist's tracks bunch together.
type Spreader struct {
	rng *rand.Rand
}

// NewSpreader creates a Spreader drawing all randomness from rng.
func NewSpreader(rng *rand.Rand) *Spreader {
	return &Spreader{rng: rng}
}

// Spread interleaves playlists into one ordered list of unique track IDs.
//
// Each artist's tracks are laid out over a shared slot array with randomized, roughly even gaps,
// then shifted by a random offset (or by the VIP rank for VIP artists). The arrays are merged slot by slot
// in an artist order where VIPs sit among the first 5-15% of the other artists.
// Only VIPs that have a playlist take part.
func (s *Spreader) Spread(playlists []ArtistPlaylist, vipIDs []string) ([]string, error) {
	maxLength := 0
	for _, p := range playlists {
		maxLength += len(p.TrackIDs)
	}

	vipRank := make(map[string]int, len(vipIDs))
	for i, id := range vipIDs {
		if _, ok := vipRank[id]; !ok {
			vipRank[id] = i
		}
	}

	slots := make(map[string][]string, len(playlists))
	for _, p := range playlists {
		if _, dup := slots[p.ArtistID]; dup {
			return nil, fmt.Errorf("%w: artist %s has more than one playlist", shared.ErrInvalidInput, p.ArtistID)
		}

		placed, last, err := s.place(p.TrackIDs, maxLength)
		if err != nil {
			return nil, fmt.Errorf("artist %s: %w", p.ArtistID, err)
		}

		offset := s.rng.IntN(MaxOffset + 1)
		if rank, ok := vipRank[p.ArtistID]; ok {
			offset = rank
		}
		slots[p.ArtistID] = shift(placed, offset, last)
	}

	order := s.mergeOrder(playlists, vipIDs, vipRank)

	out := make([]string, 0, maxLength)
	seen := make(map[string]struct{}, maxLength)
	for i := range maxLength {
		for _, artistID := range order {
			id := slots[artistID][i]
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out, nil
}

// place lays ids out over maxLength slots, one per segment of randomized length,
// and returns the slots with the index of the last track.
func (s *Spreader) place(ids []string, maxLength int) ([]string, int, error) {
	slots := make([]string, maxLength)
	n, k := maxLength, len(ids)
	pos, last := 0, -1

	for next := 0; k > 0; next++ {
		r := int(math.Round(float64(n) / float64(k) * s.noise()))
		r = min(max(r, 1), n-k+1)

		slots[pos] = ids[next]
		last = pos
		pos += r
		k--
		n -= r
	}

	placed := 0
	for _, id := range slots {
		if id != "" {
			placed++
		}
	}
	if placed != len(ids) {
		return nil, 0, fmt.Errorf("%w: placed %d of %d tracks", shared.ErrInvariantViolation, placed, len(ids))
	}
	return slots, last, nil
}

// noise is uniform in [0.90, 1.10).
func (s *Spreader) noise() float64 {
	return 0.9 + s.rng.Float64()*0.2
}

// shift moves every slot offset places later. The offset never exceeds the free slots after last,
// so no track falls off the end.
func shift(slots []string, offset, last int) []string {
	if last < 0 {
		return slots
	}
	offset = min(offset, len(slots)-1-last)

	shifted := make([]string, len(slots))
	copy(shifted[offset:], slots[:len(slots)-offset])
	return shifted
}

// mergeOrder shuffles the non-VIP artists and inserts each VIP, in priority order, at a random index
// inside the 5%-15% window of that shuffled list.
func (s *Spreader) mergeOrder(playlists []ArtistPlaylist, vipIDs []string, vipRank map[string]int) []string {
	order := make([]string, 0, len(playlists))
	present := make(map[string]bool, len(playlists))
	for _, p := range playlists {
		present[p.ArtistID] = true
		if _, vip := vipRank[p.ArtistID]; !vip {
			order = append(order, p.ArtistID)
		}
	}
	s.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	lo := int(float64(len(order)) * vipWindowStart)
	hi := int(float64(len(order)) * vipWindowEnd)
	for _, id := range vipIDs {
		if !present[id] {
			continue
		}
		present[id] = false
		at := lo + s.rng.IntN(hi-lo+1)
		order = slices.Insert(order, at, id)
	}
	return order
}
