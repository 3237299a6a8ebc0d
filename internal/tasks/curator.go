package tasks

import (
	"math/rand/v2"

	"github.com/desertthunder/mixtape/internal/models"
)

const (
	// MaxTopTracks is how many top tracks lead an artist's curated list.
	MaxTopTracks = 5
	// MaxArtistTracks is how many album tracks fill the rest of it.
	MaxArtistTracks = 10
	// MaxTrackLengthMS drops long-form recordings (live sets, mixes) from curation.
	MaxTrackLengthMS = 480000
)

// Curator selects a bounded, deduplicated, shuffled set of tracks for a single artist.
type Curator struct {
	MaxTrackLengthMS int

	rng *rand.Rand
}

// NewCurator creates a Curator drawing all randomness from rng.
func NewCurator(rng *rand.Rand) *Curator {
	return &Curator{MaxTrackLengthMS: MaxTrackLengthMS, rng: rng}
}

// Curate builds an artist's playlist of at most MaxTopTracks+MaxArtistTracks tracks.
//
// Top tracks lead, then the artist's other tracks in random order, then the top tracks past the fifth
// except the last one. The list is cut to size and shuffled. Tracks without an album, excluded tracks,
// tracks on excluded albums, and tracks longer than MaxTrackLengthMS are never picked.
// No two picked tracks share a fingerprint; the first occurrence wins, top tracks before the rest.
func (c *Curator) Curate(top, all []models.Track, excludedTracks, excludedAlbums models.IDSet) []models.Track {
	keep := func(t models.Track) bool {
		return !excludedTracks.Has(t.ID) &&
			!t.LongerThan(c.MaxTrackLengthMS) &&
			t.Album != nil &&
			!excludedAlbums.Has(t.Album.ID)
	}

	topTracks := make([]models.Track, 0, len(top))
	topIDs := models.NewIDSet()
	seen := make(map[string]struct{}, len(top)+len(all))
	for _, t := range top {
		if !keep(t) {
			continue
		}
		if _, dup := seen[t.Fingerprint]; dup {
			continue
		}
		topTracks = append(topTracks, t)
		topIDs.Add(t.ID)
		seen[t.Fingerprint] = struct{}{}
	}

	others := make([]models.Track, 0, len(all))
	for _, t := range all {
		if topIDs.Has(t.ID) || !keep(t) {
			continue
		}
		if _, dup := seen[t.Fingerprint]; dup {
			continue
		}
		seen[t.Fingerprint] = struct{}{}
		others = append(others, t)
	}
	c.shuffle(others)

	curated := make([]models.Track, 0, len(topTracks)+len(others))
	curated = append(curated, topTracks[:min(MaxTopTracks, len(topTracks))]...)
	curated = append(curated, others...)
	if len(topTracks) > MaxTopTracks {
		curated = append(curated, topTracks[MaxTopTracks:len(topTracks)-1]...)
	}

	curated = curated[:min(len(curated), MaxTopTracks+MaxArtistTracks)]
	c.shuffle(curated)
	return curated
}

func (c *Curator) shuffle(tracks []models.Track) {
	c.rng.Shuffle(len(tracks), func(i, j int) {
		tracks[i], tracks[j] = tracks[j], tracks[i]
	})
}
