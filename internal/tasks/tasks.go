package tasks

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/services"
	"github.com/desertthunder/mixtape/internal/shared"
)

// Request lists the artists to build a playlist from and what to leave out.
//
// All IDs are expected to be sanitized for the engine's service already.
type Request struct {
	ArtistIDs        []string
	ExcludedAlbumIDs []string
	ExcludedTrackIDs []string
	// VIPArtistIDs are placed early, in priority order.
	VIPArtistIDs []string
}

// Result is a generated playlist.
type Result struct {
	RunID     string                  `json:"run_id"`
	Service   string                  `json:"service"`
	TrackIDs  []string                `json:"track_ids"`
	Tracks    map[string]models.Track `json:"-"`
	Artists   []models.Artist         `json:"artists"`
	Playlists []ArtistPlaylist        `json:"playlists"`
}

// OrderedTracks returns the tracks of the playlist in order.
func (r *Result) OrderedTracks() []models.Track {
	tracks := make([]models.Track, 0, len(r.TrackIDs))
	for _, id := range r.TrackIDs {
		if t, ok := r.Tracks[id]; ok {
			tracks = append(tracks, t)
		}
	}
	return tracks
}

// RequestFromConfig builds the request for one service from the [[artists]] table,
// sanitizing every ID with the service's rules.
func RequestFromConfig(cfg *shared.Config, svc services.Service) Request {
	sanitize := svc.SanitizeID
	return Request{
		ArtistIDs:        services.SanitizeIDs(cfg.ServiceArtists(svc.Name()), sanitize),
		ExcludedAlbumIDs: services.SanitizeIDs(cfg.ExcludedAlbums(svc.Name()), sanitize),
		ExcludedTrackIDs: services.SanitizeIDs(cfg.ExcludedTracks(svc.Name()), sanitize),
		VIPArtistIDs:     services.SanitizeIDs(cfg.VIPArtists(svc.Name()), sanitize),
	}
}

// PlaylistEngine generates balanced playlists from a single music service.
type PlaylistEngine struct {
	service  services.Service
	curator  *Curator
	spreader *Spreader
	logger   *log.Logger
}

// NewPlaylistEngine creates a new PlaylistEngine reading from svc.
// A nil rng is seeded randomly; pass a seeded one for reproducible playlists.
func NewPlaylistEngine(svc services.Service, rng *rand.Rand, logger *log.Logger) *PlaylistEngine {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &PlaylistEngine{
		service:  svc,
		curator:  NewCurator(rng),
		spreader: NewSpreader(rng),
		logger:   logger,
	}
}

// sendProgress sends a progress update through the channel without blocking.
func (e *PlaylistEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Generate curates every requested artist and spreads the results into one playlist.
//
// An artist the service cannot resolve aborts the whole run. Artists without usable tracks
// simply contribute nothing.
func (e *PlaylistEngine) Generate(ctx context.Context, req Request, progress chan<- ProgressUpdate) (*Result, error) {
	if e.service == nil {
		return nil, fmt.Errorf("%w: service not initialized", shared.ErrServiceUnavailable)
	}

	runID := shared.GenerateID()
	logger := shared.WithLogger(e.logger, "run", runID, "service", e.service.Name())

	excludedTracks := models.NewIDSet(req.ExcludedTrackIDs...)
	excludedAlbums := models.NewIDSet(req.ExcludedAlbumIDs...)

	result := &Result{
		RunID:     runID,
		Service:   e.service.Name(),
		Tracks:    make(map[string]models.Track),
		Artists:   make([]models.Artist, 0, len(req.ArtistIDs)),
		Playlists: make([]ArtistPlaylist, 0, len(req.ArtistIDs)),
	}
	done := models.NewIDSet()
	total := len(req.ArtistIDs)

	for i, id := range req.ArtistIDs {
		step := i + 1
		e.sendProgress(progress, resolveArtistUpdate(step, total, id))

		artist, err := e.service.GetArtist(ctx, id)
		if err != nil {
			if errors.Is(err, shared.ErrArtistNotFound) {
				logger.Error("artist not found, aborting", "artist", id, "step", step, "total", total)
			}
			return nil, fmt.Errorf("failed to resolve artist %s: %w", id, err)
		}
		if done.Has(artist.ID) {
			logger.Warn("artist listed more than once, skipping", "artist", artist.Name, "id", artist.ID)
			continue
		}
		done.Add(artist.ID)
		logger.Info("processing artist", "artist", artist.Name, "step", step, "total", total)

		e.sendProgress(progress, fetchTopTracksUpdate(step, total, artist))
		top, err := e.service.ArtistTopTracks(ctx, *artist)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch top tracks for %s: %w", artist.Name, err)
		}

		e.sendProgress(progress, fetchArtistTracksUpdate(step, total, artist))
		all, err := e.service.ArtistTracks(ctx, *artist)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch tracks for %s: %w", artist.Name, err)
		}
		logger.Debug("fetched tracks", "artist", artist.Name, "top", len(top), "all", len(all))

		curated := e.curator.Curate(top, all, excludedTracks, excludedAlbums)
		if len(curated) == 0 {
			logger.Warn("no usable tracks", "artist", artist.Name)
		} else {
			logger.Info("curated tracks", "artist", artist.Name, "count", len(curated))
		}
		e.sendProgress(progress, curatedUpdate(step, total, artist, curated))

		ids := make([]string, 0, len(curated))
		for _, t := range curated {
			ids = append(ids, t.ID)
			if _, ok := result.Tracks[t.ID]; !ok {
				result.Tracks[t.ID] = t
			}
		}
		result.Artists = append(result.Artists, *artist)
		result.Playlists = append(result.Playlists, ArtistPlaylist{ArtistID: artist.ID, TrackIDs: ids})
	}

	slots := 0
	for _, p := range result.Playlists {
		slots += len(p.TrackIDs)
	}
	e.sendProgress(progress, spreadUpdate(len(result.Playlists), slots))
	logger.Info("spreading artist playlists", "artists", len(result.Playlists), "slots", slots)

	trackIDs, err := e.spreader.Spread(result.Playlists, req.VIPArtistIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to spread playlist: %w", err)
	}
	result.TrackIDs = trackIDs

	logger.Info("generated playlist", "tracks", len(trackIDs))
	return result, nil
}
