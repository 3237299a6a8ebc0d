// Spotify implementation of [Service]
//
// Catalog and playlist calls go through github.com/zmb3/spotify/v2. Responses are cached as JSON
// shaped like https://developer.spotify.com/documentation/web-api/reference/ and decoded into the
// small DTOs below, so cached blobs do not depend on the client library's Go types.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixtape/internal/cache"
	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/shared"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1/"

	spotifyPageSize = 50
)

// SpotifyScopes are the OAuth2 scopes needed to read the catalog and rewrite the user's playlists.
var SpotifyScopes = []string{
	"playlist-read-private",
	"playlist-read-collaborative",
	"playlist-modify-public",
	"playlist-modify-private",
}

type spotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type spotifyAlbum struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ReleaseDate string `json:"release_date"`
}

type spotifyTrack struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DurationMS  int    `json:"duration_ms"`
	ExternalIDs struct {
		ISRC string `json:"isrc"`
	} `json:"external_ids"`
	Album   *spotifyAlbum   `json:"album"`
	Artists []spotifyArtist `json:"artists"`
}

// SpotifyService implements [Service] for the Spotify Web API.
// Uses [oauth2] for authentication with automatic token refresh.
type SpotifyService struct {
	config  *oauth2.Config
	token   *oauth2.Token
	onToken func(*oauth2.Token) error

	client    *spotify.Client
	baseURL   string
	market    string
	rateLimit float64
	transport http.RoundTripper

	cache  *cache.Cache[[]byte]
	logger *log.Logger
}

// SpotifyOption configures a [SpotifyService].
type SpotifyOption func(*SpotifyService)

// WithSpotifyToken sets the stored OAuth2 token used by [SpotifyService.Login].
func WithSpotifyToken(token *oauth2.Token) SpotifyOption {
	return func(s *SpotifyService) { s.token = token }
}

// WithTokenCallback is called whenever the access token is refreshed.
func WithTokenCallback(fn func(*oauth2.Token) error) SpotifyOption {
	return func(s *SpotifyService) { s.onToken = fn }
}

// WithSpotifyBaseURL points the client at another API root; it must end with a slash.
func WithSpotifyBaseURL(u string) SpotifyOption {
	return func(s *SpotifyService) { s.baseURL = u }
}

// WithSpotifyEndpoint overrides the OAuth2 endpoints.
func WithSpotifyEndpoint(ep oauth2.Endpoint) SpotifyOption {
	return func(s *SpotifyService) { s.config.Endpoint = ep }
}

// WithMarket sets the market used for top tracks.
func WithMarket(market string) SpotifyOption {
	return func(s *SpotifyService) { s.market = market }
}

// WithSpotifyTransport sets the base transport and the request rate applied on top of it.
func WithSpotifyTransport(rt http.RoundTripper, perSecond float64) SpotifyOption {
	return func(s *SpotifyService) {
		s.transport = rt
		s.rateLimit = perSecond
	}
}

// WithSpotifyCache sets the lookup cache.
func WithSpotifyCache(c *cache.Cache[[]byte]) SpotifyOption {
	return func(s *SpotifyService) { s.cache = c }
}

// WithSpotifyLogger sets the logger.
func WithSpotifyLogger(l *log.Logger) SpotifyOption {
	return func(s *SpotifyService) { s.logger = l }
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(credentials map[string]string, opts ...SpotifyOption) (*SpotifyService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		redirectURI = "http://127.0.0.1:9090/callback"
	}

	s := &SpotifyService{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       SpotifyScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  spotifyAuthURL,
				TokenURL: spotifyTokenURL,
			},
		},
		baseURL:   spotifyBaseURL,
		market:    "US",
		transport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = shared.WithLogger(shared.NewLogger(nil), "service", shared.ServiceSpotify)
	}
	return s, nil
}

// NewSpotifyFromConfig is the registry [Factory] for Spotify.
//
// Refreshed tokens are written back to the config file so the next run can reuse them.
func NewSpotifyFromConfig(deps Deps) (Service, error) {
	cfg := deps.Config.Services.Spotify

	opts := []SpotifyOption{
		WithSpotifyToken(cfg.Token()),
		WithMarket(cfg.Market),
		WithSpotifyTransport(deps.transport(), cfg.RateLimit),
		WithSpotifyCache(deps.Cache),
		WithSpotifyLogger(deps.logger(shared.ServiceSpotify)),
	}
	if deps.ConfigPath != "" {
		opts = append(opts, WithTokenCallback(func(t *oauth2.Token) error {
			if err := deps.Config.Services.Spotify.Update(t); err != nil {
				return err
			}
			return shared.SaveConfig(deps.ConfigPath, deps.Config)
		}))
	}

	return NewSpotifyService(cfg.Map(), opts...)
}

func (s *SpotifyService) Name() string {
	return shared.ServiceSpotify
}

func (s *SpotifyService) SanitizeID(id string) string {
	return SanitizeSpotifyID(id)
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Authenticate performs OAuth2 authentication with Spotify. Expects either an "access_token" or "auth_code" in credentials.
//
// The resulting token is passed to the token callback and used by the next [SpotifyService.Login].
func (s *SpotifyService) Authenticate(ctx context.Context, credentials map[string]string) (*oauth2.Token, error) {
	var token *oauth2.Token

	if accessToken, ok := credentials["access_token"]; ok && accessToken != "" {
		token = &oauth2.Token{AccessToken: accessToken, RefreshToken: credentials["refresh_token"], TokenType: "Bearer"}
	} else if authCode, ok := credentials["auth_code"]; ok && authCode != "" {
		t, err := s.config.Exchange(s.oauthContext(ctx), authCode)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to exchange auth code: %w", shared.ErrAuthFailed, err)
		}
		token = t
	} else {
		return nil, fmt.Errorf("%w: missing access_token or auth_code", shared.ErrMissingCredentials)
	}

	s.token = token
	if s.onToken != nil {
		if err := s.onToken(token); err != nil {
			return nil, fmt.Errorf("failed to store token: %w", err)
		}
	}
	return token, nil
}

func (s *SpotifyService) httpTransport() http.RoundTripper {
	return NewRateLimitedTransport(s.transport, s.rateLimit)
}

// oauthContext makes token exchanges and refreshes use the service's transport.
func (s *SpotifyService) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: s.transport, Timeout: 30 * time.Second})
}

// Login builds the API client from the stored token.
func (s *SpotifyService) Login(ctx context.Context) error {
	if s.token == nil {
		return fmt.Errorf("%w: run `mixtape auth spotify` first", shared.ErrNotAuthenticated)
	}

	base := s.httpTransport()
	source := &notifyingTokenSource{
		base:   oauth2.ReuseTokenSource(s.token, s.config.TokenSource(s.oauthContext(ctx), s.token)),
		last:   s.token.AccessToken,
		notify: s.onToken,
		logger: s.logger,
	}

	httpClient := &http.Client{
		Transport: &oauth2.Transport{Source: source, Base: base},
		Timeout:   30 * time.Second,
	}
	s.client = spotify.New(httpClient, spotify.WithRetry(true), spotify.WithBaseURL(s.baseURL))
	return nil
}

func (s *SpotifyService) api() (*spotify.Client, error) {
	if s.client == nil {
		return nil, fmt.Errorf("%w: call Login first", shared.ErrNotAuthenticated)
	}
	return s.client, nil
}

// GetArtist resolves an artist ID, URI, or URL.
func (s *SpotifyService) GetArtist(ctx context.Context, id string) (*models.Artist, error) {
	client, err := s.api()
	if err != nil {
		return nil, err
	}

	id = s.SanitizeID(id)
	if id == "" {
		return nil, fmt.Errorf("%w: empty artist ID", shared.ErrArtistNotFound)
	}

	var artist spotifyArtist
	err = lookup(s.cache, "artist:"+id, func() (any, error) {
		return client.GetArtist(ctx, spotify.ID(id))
	}, &artist)
	if err != nil {
		if isSpotifyNotFound(err) {
			return nil, fmt.Errorf("%w: %s", shared.ErrArtistNotFound, id)
		}
		return nil, fmt.Errorf("%w: artist %s: %w", shared.ErrAPIRequest, id, err)
	}

	return &models.Artist{ID: s.SanitizeID(artist.ID), Name: artist.Name}, nil
}

// ArtistTopTracks returns the artist's top tracks in the configured market.
func (s *SpotifyService) ArtistTopTracks(ctx context.Context, artist models.Artist) ([]models.Track, error) {
	client, err := s.api()
	if err != nil {
		return nil, err
	}

	var tracks []spotifyTrack
	err = lookup(s.cache, "top-tracks:"+artist.ID, func() (any, error) {
		return client.GetArtistsTopTracks(ctx, spotify.ID(artist.ID), s.market)
	}, &tracks)
	if err != nil {
		return s.emptyOnError(err, "top tracks", artist)
	}

	out := make([]models.Track, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, s.parseTrack(t, t.Album))
	}
	return out, nil
}

// ArtistTracks returns every track credited to the artist across all of their albums.
func (s *SpotifyService) ArtistTracks(ctx context.Context, artist models.Artist) ([]models.Track, error) {
	albums, err := s.artistAlbums(ctx, artist)
	if err != nil {
		return s.emptyOnError(err, "albums", artist)
	}

	out := []models.Track{}
	for _, album := range albums {
		tracks, err := s.albumTracks(ctx, album)
		if err != nil {
			if _, err := s.emptyOnError(err, "album tracks", artist); err != nil {
				return nil, err
			}
			continue
		}

		for _, t := range tracks {
			if !creditsArtist(t, artist.ID) {
				continue
			}
			out = append(out, s.parseTrack(t, &album))
		}
	}
	return out, nil
}

func (s *SpotifyService) artistAlbums(ctx context.Context, artist models.Artist) ([]spotifyAlbum, error) {
	client, err := s.api()
	if err != nil {
		return nil, err
	}

	var albums []spotifyAlbum
	err = lookup(s.cache, "artist:"+artist.ID+":albums", func() (any, error) {
		all := []spotify.SimpleAlbum{}
		for offset := 0; ; offset += spotifyPageSize {
			page, err := client.GetArtistAlbums(ctx, spotify.ID(artist.ID), nil, spotify.Limit(spotifyPageSize), spotify.Offset(offset))
			if err != nil {
				return nil, err
			}
			all = append(all, page.Albums...)
			if len(page.Albums) < spotifyPageSize || len(all) >= int(page.Total) {
				return all, nil
			}
		}
	}, &albums)
	return albums, err
}

func (s *SpotifyService) albumTracks(ctx context.Context, album spotifyAlbum) ([]spotifyTrack, error) {
	client, err := s.api()
	if err != nil {
		return nil, err
	}

	var tracks []spotifyTrack
	err = lookup(s.cache, "album:"+album.ID+":tracks", func() (any, error) {
		all := []spotify.SimpleTrack{}
		for offset := 0; ; offset += spotifyPageSize {
			page, err := client.GetAlbumTracks(ctx, spotify.ID(album.ID), spotify.Limit(spotifyPageSize), spotify.Offset(offset))
			if err != nil {
				return nil, err
			}
			all = append(all, page.Tracks...)
			if len(page.Tracks) < spotifyPageSize || len(all) >= int(page.Total) {
				return all, nil
			}
		}
	}, &tracks)
	return tracks, err
}

// Sync replaces the playlist's items with the first batch and appends the rest.
func (s *SpotifyService) Sync(ctx context.Context, playlistName string, trackIDs []string) error {
	client, err := s.api()
	if err != nil {
		return err
	}

	playlistID, err := s.playlistID(ctx, playlistName)
	if err != nil {
		return err
	}

	chunks := batches(trackIDs, SyncBatchSize)
	if len(chunks) == 0 {
		chunks = [][]string{{}}
	}

	for i, chunk := range chunks {
		ids := make([]spotify.ID, 0, len(chunk))
		for _, id := range chunk {
			ids = append(ids, spotify.ID(s.SanitizeID(id)))
		}

		if i == 0 {
			err = client.ReplacePlaylistTracks(ctx, playlistID, ids...)
		} else {
			_, err = client.AddTracksToPlaylist(ctx, playlistID, ids...)
		}
		if err != nil {
			return fmt.Errorf("%w: failed to write batch %d of %q: %w", shared.ErrAPIRequest, i+1, playlistName, err)
		}
		s.logger.Debug("wrote playlist batch", "playlist", playlistName, "batch", i+1, "tracks", len(ids))
	}
	return nil
}

func (s *SpotifyService) playlistID(ctx context.Context, name string) (spotify.ID, error) {
	for offset := 0; ; offset += spotifyPageSize {
		page, err := s.client.CurrentUsersPlaylists(ctx, spotify.Limit(spotifyPageSize), spotify.Offset(offset))
		if err != nil {
			return "", fmt.Errorf("%w: failed to list playlists: %w", shared.ErrAPIRequest, err)
		}
		for _, p := range page.Playlists {
			if p.Name == name {
				return p.ID, nil
			}
		}
		if len(page.Playlists) < spotifyPageSize {
			return "", fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, name)
		}
	}
}

// Close saves the lookup cache.
func (s *SpotifyService) Close() error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Save()
}

func (s *SpotifyService) parseTrack(t spotifyTrack, album *spotifyAlbum) models.Track {
	artists := make([]models.Artist, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, models.Artist{ID: s.SanitizeID(a.ID), Name: a.Name})
	}

	return models.NewTrack(s.SanitizeID(t.ID), t.Name, t.DurationMS, t.ExternalIDs.ISRC, s.parseAlbum(album), artists)
}

func (s *SpotifyService) parseAlbum(a *spotifyAlbum) *models.Album {
	if a == nil || a.ID == "" {
		return nil
	}

	album := &models.Album{ID: s.SanitizeID(a.ID), Name: a.Name}
	date, err := models.ParseReleaseDate(a.ReleaseDate)
	if err != nil {
		s.logger.Warn("ignoring release date", "album", a.ID, "err", err)
	}
	album.ReleaseDate = date
	return album
}

// emptyOnError turns a recoverable fetch error into an empty result. Cache persistence failures stay fatal.
func (s *SpotifyService) emptyOnError(err error, what string, artist models.Artist) ([]models.Track, error) {
	if errors.Is(err, shared.ErrCacheSave) || errors.Is(err, shared.ErrNotAuthenticated) {
		return nil, err
	}
	s.logger.Error("failed to fetch "+what, "artist", artist.Name, "id", artist.ID, "err", err)
	return []models.Track{}, nil
}

func creditsArtist(t spotifyTrack, artistID string) bool {
	for _, a := range t.Artists {
		if SanitizeSpotifyID(a.ID) == artistID {
			return true
		}
	}
	return false
}

func isSpotifyNotFound(err error) bool {
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusNotFound || apiErr.Status == http.StatusBadRequest
	}
	return false
}

// notifyingTokenSource reports every newly issued access token.
type notifyingTokenSource struct {
	base   oauth2.TokenSource
	notify func(*oauth2.Token) error
	logger *log.Logger

	mu   sync.Mutex
	last string
}

func (s *notifyingTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.base.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrTokenExpired, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if t.AccessToken != s.last {
		s.last = t.AccessToken
		if s.notify != nil {
			if err := s.notify(t); err != nil {
				s.logger.Warn("failed to persist refreshed token", "err", err)
			}
		}
	}
	return t, nil
}
