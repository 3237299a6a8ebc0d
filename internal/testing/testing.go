// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/services"
	"github.com/desertthunder/mixtape/internal/shared"
)

var _ services.Service = (*MockService)(nil)

// MockService is a test double for [services.Service] backed by in-memory catalogs.
//
// Artists without an entry in Artists are reported as not found.
type MockService struct {
	ServiceName string
	Artists     map[string]models.Artist
	TopTracks   map[string][]models.Track
	Tracks      map[string][]models.Track

	LoginErr error
	FetchErr error
	SyncErr  error
	CloseErr error

	mu       sync.Mutex
	calls    []string
	synced   map[string][]string
	loggedIn bool
	closed   bool
}

func (m *MockService) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *MockService) Name() string {
	if m.ServiceName == "" {
		return "mock"
	}
	return m.ServiceName
}

func (m *MockService) SanitizeID(id string) string {
	return services.SanitizeSpotifyID(id)
}

func (m *MockService) Login(ctx context.Context) error {
	m.record("login")
	if m.LoginErr != nil {
		return m.LoginErr
	}
	m.mu.Lock()
	m.loggedIn = true
	m.mu.Unlock()
	return nil
}

func (m *MockService) GetArtist(ctx context.Context, id string) (*models.Artist, error) {
	m.record("artist:" + id)
	artist, ok := m.Artists[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrArtistNotFound, id)
	}
	return &artist, nil
}

func (m *MockService) ArtistTopTracks(ctx context.Context, artist models.Artist) ([]models.Track, error) {
	m.record("top-tracks:" + artist.ID)
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	return append([]models.Track{}, m.TopTracks[artist.ID]...), nil
}

func (m *MockService) ArtistTracks(ctx context.Context, artist models.Artist) ([]models.Track, error) {
	m.record("tracks:" + artist.ID)
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	return append([]models.Track{}, m.Tracks[artist.ID]...), nil
}

func (m *MockService) Sync(ctx context.Context, playlistName string, trackIDs []string) error {
	m.record("sync:" + playlistName)
	if m.SyncErr != nil {
		return m.SyncErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.synced == nil {
		m.synced = make(map[string][]string)
	}
	m.synced[playlistName] = append([]string{}, trackIDs...)
	return nil
}

func (m *MockService) Close() error {
	m.record("close")
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return m.CloseErr
}

// Calls returns every method call in order, e.g. "artist:a1" or "sync:Test Mix".
func (m *MockService) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.calls...)
}

// Synced returns the track IDs last written to playlistName and whether Sync was called for it.
func (m *MockService) Synced(playlistName string) ([]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids, ok := m.synced[playlistName]
	return ids, ok
}

// LoggedIn reports whether Login succeeded.
func (m *MockService) LoggedIn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loggedIn
}

// Closed reports whether Close was called.
func (m *MockService) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Catalog builds an artist with top tracks and album tracks named "<id>-top-<n>" and "<id>-track-<n>".
// Every track is on album "<id>-album" and lasts 180s plus one bucket per index so fingerprints differ.
func Catalog(id string, top, tracks int) (models.Artist, []models.Track, []models.Track) {
	artist := models.Artist{ID: id, Name: "Artist " + id}
	album := &models.Album{ID: id + "-album", Name: "Album " + id}

	build := func(kind string, n int) []models.Track {
		out := make([]models.Track, 0, n)
		for i := range n {
			trackID := fmt.Sprintf("%s-%s-%d", id, kind, i)
			out = append(out, models.NewTrack(trackID, trackID, 180000+i*models.FingerprintBucketMS, "", album, []models.Artist{artist}))
		}
		return out
	}
	return artist, build("top", top), build("track", tracks)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
