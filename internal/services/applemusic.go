// Apple Music implementation of [Service]
//
// Catalog and library requests go straight to https://api.music.apple.com with a signed developer token;
// library writes also carry the user's media token. Response shapes follow
// https://developer.apple.com/documentation/applemusicapi.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixtape/internal/cache"
	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/shared"
)

const (
	appleMusicBaseURL = "https://api.music.apple.com"

	appleMaxAttempts = 3
	appleMaxPolls    = 60
	// The library API answers 404 with this code for an empty playlist.
	appleEmptyRelationship = "40403"
)

var errAppleNotFound = errors.New("apple music resource not found")

type appleAttributes struct {
	Name             string `json:"name"`
	ReleaseDate      string `json:"releaseDate,omitempty"`
	DurationInMillis int    `json:"durationInMillis,omitempty"`
	ISRC             string `json:"isrc,omitempty"`
}

type appleRelationship struct {
	Data []appleResource `json:"data"`
}

type appleResource struct {
	ID            string          `json:"id"`
	Type          string          `json:"type,omitempty"`
	Attributes    appleAttributes `json:"attributes"`
	Relationships struct {
		Artists *appleRelationship `json:"artists,omitempty"`
		Albums  *appleRelationship `json:"albums,omitempty"`
	} `json:"relationships"`
}

type appleError struct {
	Status string `json:"status"`
	Code   string `json:"code"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

type appleDocument struct {
	Data   []appleResource `json:"data"`
	Next   string          `json:"next,omitempty"`
	Errors []appleError    `json:"errors,omitempty"`
	Meta   *struct {
		Total int `json:"total"`
	} `json:"meta,omitempty"`
}

type appleResponse struct {
	StatusCode int
	Body       []byte
}

func (r *appleResponse) ok() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (r *appleResponse) document() (*appleDocument, error) {
	var doc appleDocument
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return &doc, nil
	}
	if err := json.Unmarshal(r.Body, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &doc, nil
}

// AppleMusicService implements [Service] for the Apple Music API.
type AppleMusicService struct {
	teamID         string
	keyID          string
	privateKeyPath string
	mediaUserToken string
	storefront     string

	baseURL        string
	httpClient     *http.Client
	developerToken string

	clearPlaylist func(ctx context.Context, name string) error
	pollInterval  time.Duration
	retryDelay    time.Duration

	cache  *cache.Cache[[]byte]
	logger *log.Logger
}

// AppleMusicOption configures an [AppleMusicService].
type AppleMusicOption func(*AppleMusicService)

// WithAppleMusicBaseURL points the client at another API host.
func WithAppleMusicBaseURL(u string) AppleMusicOption {
	return func(s *AppleMusicService) { s.baseURL = strings.TrimSuffix(u, "/") }
}

// WithAppleMusicHTTPClient replaces the HTTP client.
func WithAppleMusicHTTPClient(c *http.Client) AppleMusicOption {
	return func(s *AppleMusicService) { s.httpClient = c }
}

// WithDeveloperToken uses a pre-signed developer token instead of signing one at login.
func WithDeveloperToken(token string) AppleMusicOption {
	return func(s *AppleMusicService) { s.developerToken = token }
}

// WithPlaylistClearer replaces the Music.app script that empties a library playlist.
func WithPlaylistClearer(fn func(ctx context.Context, name string) error) AppleMusicOption {
	return func(s *AppleMusicService) { s.clearPlaylist = fn }
}

// WithSyncTiming sets how long to wait between playlist length polls and between retries.
func WithSyncTiming(poll, retry time.Duration) AppleMusicOption {
	return func(s *AppleMusicService) {
		s.pollInterval = poll
		s.retryDelay = retry
	}
}

// WithAppleMusicCache sets the lookup cache.
func WithAppleMusicCache(c *cache.Cache[[]byte]) AppleMusicOption {
	return func(s *AppleMusicService) { s.cache = c }
}

// WithAppleMusicLogger sets the logger.
func WithAppleMusicLogger(l *log.Logger) AppleMusicOption {
	return func(s *AppleMusicService) { s.logger = l }
}

// NewAppleMusicService creates an Apple Music service from its developer credentials.
func NewAppleMusicService(cfg shared.AppleMusicConfig, opts ...AppleMusicOption) *AppleMusicService {
	storefront := cfg.Storefront
	if storefront == "" {
		storefront = "us"
	}

	s := &AppleMusicService{
		teamID:         cfg.TeamID,
		keyID:          cfg.KeyID,
		privateKeyPath: cfg.PrivateKeyPath,
		mediaUserToken: cfg.MediaUserToken,
		storefront:     storefront,
		baseURL:        appleMusicBaseURL,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		clearPlaylist:  clearMusicAppPlaylist,
		pollInterval:   2 * time.Second,
		retryDelay:     time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = shared.WithLogger(shared.NewLogger(nil), "service", shared.ServiceAppleMusic)
	}
	return s
}

// NewAppleMusicFromConfig is the registry [Factory] for Apple Music.
func NewAppleMusicFromConfig(deps Deps) (Service, error) {
	cfg := deps.Config.Services.AppleMusic
	client := &http.Client{
		Transport: NewRateLimitedTransport(deps.transport(), cfg.RateLimit),
		Timeout:   30 * time.Second,
	}

	return NewAppleMusicService(cfg,
		WithAppleMusicHTTPClient(client),
		WithAppleMusicCache(deps.Cache),
		WithAppleMusicLogger(deps.logger(shared.ServiceAppleMusic)),
	), nil
}

func (s *AppleMusicService) Name() string {
	return shared.ServiceAppleMusic
}

func (s *AppleMusicService) SanitizeID(id string) string {
	return SanitizeAppleMusicID(id)
}

// Login signs a developer token unless one was supplied.
func (s *AppleMusicService) Login(ctx context.Context) error {
	if s.developerToken != "" {
		return nil
	}

	key, err := LoadPrivateKey(s.privateKeyPath)
	if err != nil {
		return err
	}

	token, exp, err := DeveloperToken(s.teamID, s.keyID, key, time.Now(), DeveloperTokenTTL)
	if err != nil {
		return err
	}
	s.developerToken = token
	s.logger.Debug("signed developer token", "expires", exp)
	return nil
}

// do performs a single request against the API and returns the raw response.
func (s *AppleMusicService) do(ctx context.Context, method, path string, body any, library bool) (*appleResponse, error) {
	if s.developerToken == "" {
		return nil, fmt.Errorf("%w: call Login first", shared.ErrNotAuthenticated)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.developerToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if library {
		if s.mediaUserToken == "" {
			return nil, fmt.Errorf("%w: apple music media_user_token is not configured", shared.ErrMissingCredentials)
		}
		req.Header.Set("Media-User-Token", s.mediaUserToken)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &appleResponse{StatusCode: resp.StatusCode, Body: data}, nil
}

// get fetches a document, retrying throttled and failed requests.
func (s *AppleMusicService) get(ctx context.Context, path string, library bool) (*appleDocument, error) {
	var lastErr error
	for attempt := 1; attempt <= appleMaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, s.retryDelay*time.Duration(attempt-1)); err != nil {
				return nil, err
			}
		}

		resp, err := s.do(ctx, http.MethodGet, path, nil, library)
		if err != nil {
			if errors.Is(err, shared.ErrNotAuthenticated) || errors.Is(err, shared.ErrMissingCredentials) {
				return nil, err
			}
			lastErr = err
			continue
		}

		if resp.ok() || resp.StatusCode == http.StatusNotFound {
			doc, err := resp.document()
			if err != nil {
				return nil, err
			}
			if resp.StatusCode == http.StatusNotFound {
				return doc, fmt.Errorf("%w: %s", errAppleNotFound, path)
			}
			return doc, nil
		}

		lastErr = fmt.Errorf("%w: %s returned status %d", shared.ErrAPIRequest, path, resp.StatusCode)
		s.logger.Warn("apple music request failed", "path", path, "status", resp.StatusCode, "attempt", attempt)
		if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
			return nil, lastErr
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", appleMaxAttempts, lastErr)
}

// collect follows "next" links and returns every resource of a paginated collection.
func (s *AppleMusicService) collect(ctx context.Context, path string, library bool) (*appleDocument, error) {
	all := &appleDocument{Data: []appleResource{}}
	for path != "" {
		doc, err := s.get(ctx, path, library)
		if err != nil {
			return nil, err
		}
		all.Data = append(all.Data, doc.Data...)
		path = doc.Next
	}
	return all, nil
}

func (s *AppleMusicService) catalogPath(format string, args ...any) string {
	escaped := make([]any, len(args))
	for i, a := range args {
		escaped[i] = url.PathEscape(fmt.Sprint(a))
	}
	return "/v1/catalog/" + url.PathEscape(s.storefront) + fmt.Sprintf(format, escaped...)
}

// resource fetches a single catalog resource through the cache.
func (s *AppleMusicService) resource(ctx context.Context, key, path string) (*appleResource, error) {
	var doc appleDocument
	err := lookup(s.cache, key, func() (any, error) {
		return s.get(ctx, path, false)
	}, &doc)
	if err != nil {
		return nil, err
	}
	if len(doc.Data) == 0 {
		return nil, fmt.Errorf("%w: %s", errAppleNotFound, path)
	}
	return &doc.Data[0], nil
}

// GetArtist resolves a catalog artist ID or URL.
func (s *AppleMusicService) GetArtist(ctx context.Context, id string) (*models.Artist, error) {
	id = s.SanitizeID(id)
	if id == "" {
		return nil, fmt.Errorf("%w: empty artist ID", shared.ErrArtistNotFound)
	}

	res, err := s.resource(ctx, "artist:"+id, s.catalogPath("/artists/%s", id))
	if err != nil {
		if errors.Is(err, errAppleNotFound) {
			return nil, fmt.Errorf("%w: %s", shared.ErrArtistNotFound, id)
		}
		return nil, fmt.Errorf("%w: artist %s: %w", shared.ErrAPIRequest, id, err)
	}
	return &models.Artist{ID: res.ID, Name: res.Attributes.Name}, nil
}

func (s *AppleMusicService) album(ctx context.Context, id string) (*models.Album, error) {
	res, err := s.resource(ctx, "album:"+id, s.catalogPath("/albums/%s", id))
	if err != nil {
		return nil, err
	}
	return s.parseAlbum(*res), nil
}

// song fetches a song with its artist and album relationships resolved.
func (s *AppleMusicService) song(ctx context.Context, id string) (*models.Track, error) {
	res, err := s.resource(ctx, "track:"+id, s.catalogPath("/songs/%s", id))
	if err != nil {
		return nil, err
	}

	artists := []models.Artist{}
	if rel := res.Relationships.Artists; rel != nil {
		for _, a := range rel.Data {
			artist, err := s.GetArtist(ctx, a.ID)
			if err != nil {
				return nil, err
			}
			artists = append(artists, *artist)
		}
	}

	var album *models.Album
	if rel := res.Relationships.Albums; rel != nil && len(rel.Data) > 0 {
		album, err = s.album(ctx, rel.Data[0].ID)
		if err != nil {
			return nil, err
		}
	}

	track := models.NewTrack(res.ID, res.Attributes.Name, res.Attributes.DurationInMillis, res.Attributes.ISRC, album, artists)
	return &track, nil
}

// ArtistTopTracks returns the artist's top songs view.
func (s *AppleMusicService) ArtistTopTracks(ctx context.Context, artist models.Artist) ([]models.Track, error) {
	var doc appleDocument
	err := lookup(s.cache, "top-tracks:"+artist.ID, func() (any, error) {
		return s.get(ctx, s.catalogPath("/artists/%s/view/top-songs", artist.ID), false)
	}, &doc)
	if err != nil {
		return s.emptyOnError(err, "top tracks", artist)
	}

	tracks := make([]models.Track, 0, len(doc.Data))
	for _, res := range doc.Data {
		track, err := s.song(ctx, res.ID)
		if err != nil {
			if errors.Is(err, shared.ErrCacheSave) {
				return nil, err
			}
			s.logger.Error("failed to fetch track", "artist", artist.Name, "track", res.ID, "err", err)
			continue
		}
		tracks = append(tracks, *track)
	}
	return tracks, nil
}

// ArtistTracks returns every song on the artist's albums, credited to the artist.
func (s *AppleMusicService) ArtistTracks(ctx context.Context, artist models.Artist) ([]models.Track, error) {
	var albums appleDocument
	err := lookup(s.cache, "artist:"+artist.ID+":albums", func() (any, error) {
		return s.collect(ctx, s.catalogPath("/artists/%s/albums", artist.ID), false)
	}, &albums)
	if err != nil {
		return s.emptyOnError(err, "albums", artist)
	}

	tracks := []models.Track{}
	for _, a := range albums.Data {
		album := s.parseAlbum(a)

		var songs appleDocument
		err := lookup(s.cache, "album:"+album.ID+":tracks", func() (any, error) {
			return s.collect(ctx, s.catalogPath("/albums/%s/tracks", album.ID), false)
		}, &songs)
		if err != nil {
			if _, err := s.emptyOnError(err, "album tracks", artist); err != nil {
				return nil, err
			}
			continue
		}

		for _, song := range songs.Data {
			tracks = append(tracks, models.NewTrack(
				song.ID, song.Attributes.Name, song.Attributes.DurationInMillis, song.Attributes.ISRC,
				album, []models.Artist{artist},
			))
		}
	}
	return tracks, nil
}

// Sync empties the library playlist through Music.app, waits for the deletion to reach the API,
// then appends trackIDs in batches.
func (s *AppleMusicService) Sync(ctx context.Context, playlistName string, trackIDs []string) error {
	s.logger.Info("determining playlist id", "playlist", playlistName)
	playlistID, err := s.playlistID(ctx, playlistName)
	if err != nil {
		return err
	}

	s.logger.Info("clearing existing tracks", "playlist", playlistName)
	if err := s.clearPlaylist(ctx, playlistName); err != nil {
		return fmt.Errorf("failed to clear playlist %q: %w", playlistName, err)
	}

	if err := s.waitForEmpty(ctx, playlistID); err != nil {
		return err
	}

	s.logger.Info("publishing songs", "playlist", playlistName, "count", len(trackIDs))
	path := "/v1/me/library/playlists/" + url.PathEscape(playlistID) + "/tracks"
	for i, batch := range batches(trackIDs, SyncBatchSize) {
		data := make([]map[string]string, 0, len(batch))
		for _, id := range batch {
			data = append(data, map[string]string{"id": s.SanitizeID(id), "type": "songs"})
		}

		if err := s.post(ctx, path, map[string]any{"data": data}); err != nil {
			return fmt.Errorf("failed to add batch %d to %q: %w", i+1, playlistName, err)
		}
	}
	return nil
}

func (s *AppleMusicService) post(ctx context.Context, path string, body any) error {
	var lastErr error
	for attempt := 1; attempt <= appleMaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, s.retryDelay*time.Duration(attempt-1)); err != nil {
				return err
			}
		}

		resp, err := s.do(ctx, http.MethodPost, path, body, true)
		if err != nil {
			if errors.Is(err, shared.ErrMissingCredentials) || errors.Is(err, shared.ErrNotAuthenticated) {
				return err
			}
			lastErr = err
			continue
		}
		if resp.ok() {
			return nil
		}

		lastErr = fmt.Errorf("%w: status %d: %s", shared.ErrAPIRequest, resp.StatusCode, strings.TrimSpace(string(resp.Body)))
		s.logger.Warn("apple music write failed", "status", resp.StatusCode, "attempt", attempt)
	}
	return fmt.Errorf("after %d attempts: %w", appleMaxAttempts, lastErr)
}

func (s *AppleMusicService) playlistID(ctx context.Context, name string) (string, error) {
	doc, err := s.collect(ctx, "/v1/me/library/playlists", true)
	if err != nil {
		return "", fmt.Errorf("failed to list playlists: %w", err)
	}
	for _, p := range doc.Data {
		if p.Attributes.Name == name {
			return p.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, name)
}

// playlistLength returns the number of tracks in a library playlist.
func (s *AppleMusicService) playlistLength(ctx context.Context, playlistID string) (int, error) {
	doc, err := s.get(ctx, "/v1/me/library/playlists/"+url.PathEscape(playlistID)+"/tracks", true)
	if errors.Is(err, errAppleNotFound) {
		for _, e := range doc.Errors {
			if e.Code == appleEmptyRelationship {
				return 0, nil
			}
		}
		return 0, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
	}
	if err != nil {
		return 0, err
	}

	if doc.Meta != nil {
		return doc.Meta.Total, nil
	}
	return len(doc.Data), nil
}

func (s *AppleMusicService) waitForEmpty(ctx context.Context, playlistID string) error {
	for poll := 0; poll < appleMaxPolls; poll++ {
		count, err := s.playlistLength(ctx, playlistID)
		if err != nil {
			return err
		}
		if count == 0 {
			return nil
		}

		s.logger.Info("waiting for Music.app to process the deletion", "remaining", count)
		if err := sleep(ctx, s.pollInterval); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: playlist %s still has tracks after %d checks", shared.ErrTimeout, playlistID, appleMaxPolls)
}

// Close saves the lookup cache.
func (s *AppleMusicService) Close() error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Save()
}

func (s *AppleMusicService) parseAlbum(res appleResource) *models.Album {
	album := &models.Album{ID: res.ID, Name: res.Attributes.Name}
	date, err := models.ParseReleaseDate(res.Attributes.ReleaseDate)
	if err != nil {
		s.logger.Warn("ignoring release date", "album", res.ID, "err", err)
	}
	album.ReleaseDate = date
	return album
}

func (s *AppleMusicService) emptyOnError(err error, what string, artist models.Artist) ([]models.Track, error) {
	if errors.Is(err, shared.ErrCacheSave) || errors.Is(err, shared.ErrNotAuthenticated) {
		return nil, err
	}
	s.logger.Error("failed to fetch "+what, "artist", artist.Name, "id", artist.ID, "err", err)
	return []models.Track{}, nil
}

// clearMusicAppPlaylist deletes every track of a library playlist through Music.app.
func clearMusicAppPlaylist(_ context.Context, name string) error {
	_, err := shared.RunAppleScript(ClearPlaylistScript(name))
	return err
}

// ClearPlaylistScript returns the AppleScript that empties the named Music.app playlist.
func ClearPlaylistScript(name string) string {
	quoted := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(name)
	return `tell application "Music" to run
tell application "Music"
	set thePlaylist to (get playlist "` + quoted + `")
	delete every track of thePlaylist
end tell`
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
