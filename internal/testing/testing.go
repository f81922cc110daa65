// package testing contains shared testing utilities
package testing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"sync"
	"testing"

	"github.com/sohanagashimani/playlist-converter/internal/models"
	"github.com/sohanagashimani/playlist-converter/internal/shared"
)

// FakeSource is a test double for [services.PlaylistSource].
//
// When Block is non-nil, FetchPlaylist waits until it is closed or ctx is done.
type FakeSource struct {
	Playlist *models.SourcePlaylist
	Err      error
	Block    chan struct{}

	mu    sync.Mutex
	calls int
}

func (f *FakeSource) FetchPlaylist(ctx context.Context, playlistURL string) (*models.SourcePlaylist, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.Block != nil {
		select {
		case <-f.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Playlist == nil {
		return &models.SourcePlaylist{URL: playlistURL}, nil
	}
	pl := *f.Playlist
	pl.Tracks = slices.Clone(f.Playlist.Tracks)
	return &pl, nil
}

func (f *FakeSource) Name() string { return "fake-source" }

// Calls returns how many times FetchPlaylist ran.
func (f *FakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// FakeMatcher is a test double for [services.TrackMatcher].
//
// Searches resolve through Matches keyed by title; titles without an entry are not found.
type FakeMatcher struct {
	Matches     map[string]*models.MatchedTrack
	SearchErrs  map[string]error
	AddErrs     map[string]error // keyed by video id
	HealthErr   error
	CreateErr   error
	BatchAddErr error

	// OnSearch runs before each search resolves, outside the fake's lock.
	OnSearch func(title string)
	// OnCreate runs before CreatePlaylist resolves, outside the fake's lock.
	OnCreate func(req models.PlaylistRequest)
	// OnAdd runs after each single-track addition resolves, outside the fake's lock.
	OnAdd func(videoID string)
	// OnHealth runs before HealthCheck returns.
	OnHealth func()

	mu       sync.Mutex
	searches []string
	created  []models.PlaylistRequest
	added    []string
}

func (f *FakeMatcher) SearchTrack(ctx context.Context, title, artist string) (*models.MatchedTrack, error) {
	f.mu.Lock()
	f.searches = append(f.searches, title)
	f.mu.Unlock()

	if f.OnSearch != nil {
		f.OnSearch(title)
	}
	if err, ok := f.SearchErrs[title]; ok {
		return nil, err
	}
	if m, ok := f.Matches[title]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("%w: %s by %s", shared.ErrTrackNotFound, title, artist)
}

func (f *FakeMatcher) CreatePlaylist(ctx context.Context, req models.PlaylistRequest) (*models.TargetPlaylist, error) {
	f.mu.Lock()
	f.created = append(f.created, req)
	f.mu.Unlock()

	if f.OnCreate != nil {
		f.OnCreate(req)
	}
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}

	id := "PL" + req.JobID
	pl := &models.TargetPlaylist{
		ID:          id,
		Title:       req.Title,
		Description: req.Description,
		URL:         f.PlaylistURL(id),
		TracksAdded: len(req.VideoIDs),
	}
	if f.BatchAddErr != nil && len(req.VideoIDs) > 0 {
		pl.TracksAdded = 0
		pl.AddError = f.BatchAddErr.Error()
	}
	return pl, nil
}

func (f *FakeMatcher) AddTrack(ctx context.Context, playlistID, videoID string) error {
	if err, ok := f.AddErrs[videoID]; ok {
		return err
	}
	f.mu.Lock()
	f.added = append(f.added, videoID)
	f.mu.Unlock()

	if f.OnAdd != nil {
		f.OnAdd(videoID)
	}
	return nil
}

func (f *FakeMatcher) HealthCheck(ctx context.Context) error {
	if f.OnHealth != nil {
		f.OnHealth()
	}
	return f.HealthErr
}

func (f *FakeMatcher) PlaylistURL(id string) string {
	return "https://music.youtube.com/playlist?list=" + id
}

func (f *FakeMatcher) Name() string { return "fake-matcher" }

// Searches returns the titles searched so far, in order.
func (f *FakeMatcher) Searches() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.searches)
}

// Created returns every playlist creation request received.
func (f *FakeMatcher) Created() []models.PlaylistRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.created)
}

// Added returns the video ids successfully added one at a time.
func (f *FakeMatcher) Added() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.added)
}

// Match builds a matched track for title.
func Match(videoID, title string, artists ...string) *models.MatchedTrack {
	return &models.MatchedTrack{VideoID: videoID, Title: title, Artists: artists}
}

// Playlist builds a source playlist named name with one track per title.
func Playlist(name string, titles ...string) *models.SourcePlaylist {
	pl := &models.SourcePlaylist{
		ID:   "src-" + name,
		Name: name,
		URL:  "https://open.spotify.com/playlist/" + name,
	}
	for _, title := range titles {
		pl.Tracks = append(pl.Tracks, models.SourceTrack{Title: title, Artist: "Artist " + title})
	}
	return pl
}

// MustOpenMemoryDB opens a migrated in-memory store closed at test cleanup.
func MustOpenMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := shared.OpenStore(context.Background(), shared.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
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

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
