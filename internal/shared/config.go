package shared

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/oauth2"
)

//go:embed config.example.toml
var exampleConf []byte

// Service names used as keys in [services] and in artist entries.
const (
	ServiceSpotify    = "spotify"
	ServiceAppleMusic = "apple_music"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Log      LogConfig      `toml:"log"`
	Cache    CacheConfig    `toml:"cache"`
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Services ServicesConfig `toml:"services"`
	Artists  []ArtistConfig `toml:"artists"`
}

// LogConfig controls the default log level.
type LogConfig struct {
	Level string `toml:"level"`
}

// CacheConfig contains settings for the per-service lookup caches.
type CacheConfig struct {
	Dir         string `toml:"dir"`          // Root for file-backed caches (default: user cache dir)
	CutoffHours int    `toml:"cutoff_hours"` // Base eviction cutoff before jitter
	Autosave    bool   `toml:"autosave"`
	Backend     string `toml:"backend"`  // file or sqlite
	Eviction    string `toml:"eviction"` // age or legacy
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains the local OAuth callback server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// ServicesConfig contains the per-service settings.
type ServicesConfig struct {
	Spotify    SpotifyConfig    `toml:"spotify"`
	AppleMusic AppleMusicConfig `toml:"apple_music"`
}

// PlaylistConfig names the production and test playlists a service syncs to.
type PlaylistConfig struct {
	Playlist     string `toml:"playlist"`
	TestPlaylist string `toml:"test_playlist"`
}

// SpotifyConfig contains Spotify API credentials and stored OAuth2 tokens.
type SpotifyConfig struct {
	Enabled bool `toml:"enabled"`
	PlaylistConfig
	ClientID     string    `toml:"client_id"`
	ClientSecret string    `toml:"client_secret"`
	RedirectURI  string    `toml:"redirect_uri"`
	Market       string    `toml:"market"`
	RateLimit    float64   `toml:"rate_limit"`
	AccessToken  string    `toml:"access_token"`
	RefreshToken string    `toml:"refresh_token"`
	TokenExpiry  time.Time `toml:"token_expiry"`
}

// AppleMusicConfig contains Apple Music developer credentials and the user's media token.
type AppleMusicConfig struct {
	Enabled bool `toml:"enabled"`
	PlaylistConfig
	TeamID         string  `toml:"team_id"`
	KeyID          string  `toml:"key_id"`
	PrivateKeyPath string  `toml:"private_key_path"`
	MediaUserToken string  `toml:"media_user_token"`
	Storefront     string  `toml:"storefront"`
	RateLimit      float64 `toml:"rate_limit"`
}

// ArtistConfig describes one artist: its ID on each service, VIP status, and exclusions.
type ArtistConfig struct {
	Name     string                   `toml:"name"`
	VIP      bool                     `toml:"vip"`
	Services map[string]string        `toml:"services"`
	Exclude  map[string]ExcludeConfig `toml:"exclude"`
}

// ExcludeConfig lists album and track IDs that must never be picked for an artist.
type ExcludeConfig struct {
	Albums []string `toml:"albums"`
	Tracks []string `toml:"tracks"`
}

// Map returns the Spotify credentials in the shape expected by the service constructor.
func (c SpotifyConfig) Map() map[string]string {
	return map[string]string{
		"client_id":     c.ClientID,
		"client_secret": c.ClientSecret,
		"redirect_uri":  c.RedirectURI,
	}
}

// Token returns the stored OAuth2 token, or nil when no tokens have been saved yet.
func (c SpotifyConfig) Token() *oauth2.Token {
	if c.AccessToken == "" && c.RefreshToken == "" {
		return nil
	}
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       c.TokenExpiry,
	}
}

// Update stores a freshly issued token.
func (c *SpotifyConfig) Update(token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidCredentials)
	}
	c.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		c.RefreshToken = token.RefreshToken
	}
	c.TokenExpiry = token.Expiry
	return nil
}

// Playlist returns the configured target playlist for a service.
//
// Production runs use the live playlist; everything else goes to the test playlist.
func (c *Config) Playlist(service string, production bool) (string, error) {
	var pc PlaylistConfig
	switch service {
	case ServiceSpotify:
		pc = c.Services.Spotify.PlaylistConfig
	case ServiceAppleMusic:
		pc = c.Services.AppleMusic.PlaylistConfig
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownService, service)
	}

	name := pc.TestPlaylist
	if production {
		name = pc.Playlist
	}
	if name == "" {
		return "", fmt.Errorf("%w: no playlist configured for %s (production=%v)", ErrInvalidConfig, service, production)
	}
	return name, nil
}

// IsEnabled reports whether a service is switched on.
func (c *Config) IsEnabled(service string) bool {
	switch service {
	case ServiceSpotify:
		return c.Services.Spotify.Enabled
	case ServiceAppleMusic:
		return c.Services.AppleMusic.Enabled
	default:
		return false
	}
}

// ServiceArtists returns the raw artist IDs configured for a service, in file order.
func (c *Config) ServiceArtists(service string) []string {
	ids := []string{}
	for _, a := range c.Artists {
		if id, ok := a.Services[service]; ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// VIPArtists returns the artist IDs flagged as VIP for a service; their order is their priority.
func (c *Config) VIPArtists(service string) []string {
	ids := []string{}
	for _, a := range c.Artists {
		if !a.VIP {
			continue
		}
		if id, ok := a.Services[service]; ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// ExcludedAlbums returns every excluded album ID for a service across all artists.
func (c *Config) ExcludedAlbums(service string) []string {
	ids := []string{}
	for _, a := range c.Artists {
		if ex, ok := a.Exclude[service]; ok {
			ids = append(ids, ex.Albums...)
		}
	}
	return ids
}

// ExcludedTracks returns every excluded track ID for a service across all artists.
func (c *Config) ExcludedTracks(service string) []string {
	ids := []string{}
	for _, a := range c.Artists {
		if ex, ok := a.Exclude[service]; ok {
			ids = append(ids, ex.Tracks...)
		}
	}
	return ids
}

// EnabledServices returns the names of the enabled services in a stable order.
func (c *Config) EnabledServices() []string {
	names := []string{}
	for _, name := range []string{ServiceSpotify, ServiceAppleMusic} {
		if c.IsEnabled(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// CacheCutoff returns the configured base eviction cutoff.
func (c *Config) CacheCutoff() time.Duration {
	if c.Cache.CutoffHours <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.Cache.CutoffHours) * time.Hour
}

// DefaultConfigPath returns ~/.config/mixtape/config.toml, falling back to ./config.toml.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(dir, "mixtape", "config.toml")
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	config.Artists = nil
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// SaveConfig writes the configuration back to path, e.g. after new OAuth2 tokens were issued.
func SaveConfig(path string, config *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
