package tasks

import (
	"fmt"

	"github.com/desertthunder/mixtape/internal/models"
)

// ProgressUpdate represents a progress event during playlist generation.
//
// Used to send real-time updates to the CLI for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	ResolveArtist Phase = iota
	FetchTopTracks
	FetchArtistTracks
	CurateTracks
	SpreadPlaylist
)

func (p Phase) String() string {
	switch p {
	case ResolveArtist:
		return "resolve_artist"
	case FetchTopTracks:
		return "fetch_top_tracks"
	case FetchArtistTracks:
		return "fetch_artist_tracks"
	case CurateTracks:
		return "curate_tracks"
	case SpreadPlaylist:
		return "spread_playlist"
	default:
		return ""
	}
}

func resolveArtistUpdate(step, total int, id string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveArtist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Resolving artist %s...", step, total, id),
	}
}

func fetchTopTracksUpdate(step, total int, artist *models.Artist) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchTopTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Fetching top tracks for %s...", step, total, artist.Name),
		Data:    artist,
	}
}

func fetchArtistTracksUpdate(step, total int, artist *models.Artist) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchArtistTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Fetching album tracks for %s...", step, total, artist.Name),
		Data:    artist,
	}
}

func curatedUpdate(step, total int, artist *models.Artist, tracks []models.Track) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CurateTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d tracks)", step, total, artist.Name, len(tracks)),
		Data:    tracks,
	}
}

func spreadUpdate(artists, slots int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SpreadPlaylist,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Spreading %d slots across %d artists...", slots, artists),
	}
}
