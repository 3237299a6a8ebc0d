package services

import (
	"context"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixtape/internal/cache"
	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/shared"
)

// SyncBatchSize is the number of tracks sent per playlist write request.
const SyncBatchSize = 80

// Service is a music provider the playlist engine can read catalogs from and write playlists to.
type Service interface {
	// Name returns the registry name of the service (e.g. "spotify").
	Name() string

	// SanitizeID canonicalizes a user-supplied identifier (URL, URI, or bare ID) into a service ID.
	SanitizeID(id string) string

	// Login prepares authenticated clients. It must be called before any other network operation.
	Login(ctx context.Context) error

	// GetArtist resolves an artist.
	// Returns an error wrapping [shared.ErrArtistNotFound] when the service does not know the ID.
	GetArtist(ctx context.Context, id string) (*models.Artist, error)

	// ArtistTopTracks returns the artist's most popular tracks, best first.
	// Recoverable fetch problems are logged and yield an empty list.
	ArtistTopTracks(ctx context.Context, artist models.Artist) ([]models.Track, error)

	// ArtistTracks returns every track on the artist's albums.
	// Recoverable fetch problems are logged and yield an empty list.
	ArtistTracks(ctx context.Context, artist models.Artist) ([]models.Track, error)

	// Sync replaces the contents of the named playlist with trackIDs, in order.
	Sync(ctx context.Context, playlistName string, trackIDs []string) error

	// Close persists the service's lookup cache.
	Close() error
}

// Deps carries what every adapter needs from the application.
type Deps struct {
	Config *shared.Config
	// ConfigPath is where refreshed credentials are written back. Empty disables persistence.
	ConfigPath string
	Cache      *cache.Cache[[]byte]
	Logger     *log.Logger
	// Transport is the base HTTP transport; nil means [http.DefaultTransport].
	Transport http.RoundTripper
}

func (d Deps) logger(service string) *log.Logger {
	l := d.Logger
	if l == nil {
		l = shared.NewLogger(nil)
	}
	return shared.WithLogger(l, "service", service)
}

func (d Deps) transport() http.RoundTripper {
	if d.Transport == nil {
		return http.DefaultTransport
	}
	return d.Transport
}

// batches splits ids into consecutive chunks of at most size elements.
func batches(ids []string, size int) [][]string {
	out := [][]string{}
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		out = append(out, ids[start:end])
	}
	return out
}
