// YouTube Music [TrackMatcher] implementation
//
// Communicates with the matching microservice, which wraps the ytmusicapi
// Python library and owns the YouTube Music account session.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sohanagashimani/playlist-converter/internal/models"
	"github.com/sohanagashimani/playlist-converter/internal/shared"
)

const (
	defaultYTBaseURL   = "http://localhost:8000"
	ytPlaylistURL      = "https://music.youtube.com/playlist?list="
	healthCheckTimeout = 5 * time.Second
)

// YouTubeArtist represents an artist in YouTube Music responses.
type YouTubeArtist struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// YouTubeTrack represents the best match returned by /search.
type YouTubeTrack struct {
	VideoID  string          `json:"videoId"`
	Title    string          `json:"title"`
	Artists  []YouTubeArtist `json:"artists"`
	Duration string          `json:"duration"`
}

// YouTubePlaylist represents a playlist returned by /create-playlist.
type YouTubePlaylist struct {
	PlaylistID  string `json:"playlistId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// ytResponse is the envelope every microservice endpoint replies with.
type ytResponse struct {
	Success   bool             `json:"success"`
	Error     string           `json:"error"`
	Message   string           `json:"message"`
	Cancelled bool             `json:"cancelled"`
	Result    *YouTubeTrack    `json:"result"`
	Playlist  *YouTubePlaylist `json:"playlist"`
}

// YouTubeService implements [TrackMatcher] via the matching microservice.
type YouTubeService struct {
	baseURL    string
	httpClient *http.Client
}

// NewYouTubeService creates a new YouTube Music service instance.
func NewYouTubeService(baseURL string) *YouTubeService {
	if baseURL == "" {
		baseURL = defaultYTBaseURL
	}

	return &YouTubeService{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// Name returns the service name.
func (y *YouTubeService) Name() string {
	return "YouTube Music"
}

// PlaylistURL returns the public URL of a YouTube Music playlist.
func (y *YouTubeService) PlaylistURL(playlistID string) string {
	return ytPlaylistURL + url.QueryEscape(playlistID)
}

func (y *YouTubeService) doRequest(ctx context.Context, method, endpoint string, body any) (*ytResponse, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, y.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var out ytResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&out)

	if resp.StatusCode == http.StatusConflict && out.Cancelled {
		return nil, fmt.Errorf("%w: %s", shared.ErrCancelled, out.Error)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && out.Error != "" {
			return nil, fmt.Errorf("%w: youtube music (status %d): %s", shared.ErrAPIRequest, resp.StatusCode, out.Error)
		}
		return nil, fmt.Errorf("%w: youtube music status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode response: %w", decodeErr)
	}

	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "unknown error"
		}
		return nil, fmt.Errorf("%w: youtube music: %s", shared.ErrAPIRequest, msg)
	}
	return &out, nil
}

// SearchTrack searches for a track by title and artist.
//
// Calls POST /search on the microservice.
func (y *YouTubeService) SearchTrack(ctx context.Context, title, artist string) (*models.MatchedTrack, error) {
	body := map[string]string{
		"query":  strings.TrimSpace(title + " " + artist),
		"title":  title,
		"artist": artist,
	}

	resp, err := y.doRequest(ctx, http.MethodPost, "/search", body)
	if err != nil {
		return nil, err
	}

	if resp.Result == nil || resp.Result.VideoID == "" {
		return nil, fmt.Errorf("%w: %s by %s", shared.ErrTrackNotFound, title, artist)
	}

	artists := make([]string, 0, len(resp.Result.Artists))
	for _, a := range resp.Result.Artists {
		artists = append(artists, a.Name)
	}

	return &models.MatchedTrack{
		VideoID:  resp.Result.VideoID,
		Title:    resp.Result.Title,
		Artists:  artists,
		Duration: resp.Result.Duration,
	}, nil
}

// CreatePlaylist creates a public playlist and adds req.VideoIDs in one batch.
//
// Calls POST /create-playlist, then POST /add-batch-to-playlist when there are tracks.
// The microservice rejects creation with 409 once the conversion is cancelled.
func (y *YouTubeService) CreatePlaylist(ctx context.Context, req models.PlaylistRequest) (*models.TargetPlaylist, error) {
	body := map[string]string{
		"title":       req.Title,
		"description": req.Description,
	}
	if req.JobID != "" {
		body["conversionId"] = req.JobID
	}

	resp, err := y.doRequest(ctx, http.MethodPost, "/create-playlist", body)
	if err != nil {
		return nil, fmt.Errorf("playlist creation failed: %w", err)
	}
	if resp.Playlist == nil || resp.Playlist.PlaylistID == "" {
		return nil, fmt.Errorf("%w: playlist creation returned no id", shared.ErrAPIRequest)
	}

	playlist := &models.TargetPlaylist{
		ID:          resp.Playlist.PlaylistID,
		Title:       resp.Playlist.Title,
		Description: resp.Playlist.Description,
		URL:         y.PlaylistURL(resp.Playlist.PlaylistID),
	}

	if len(req.VideoIDs) == 0 {
		return playlist, nil
	}

	batch := map[string]any{"playlistId": playlist.ID, "videoIds": req.VideoIDs}
	if _, err := y.doRequest(ctx, http.MethodPost, "/add-batch-to-playlist", batch); err != nil {
		playlist.AddError = err.Error()
		return playlist, nil
	}
	playlist.TracksAdded = len(req.VideoIDs)
	return playlist, nil
}

// AddTrack appends a single track to a playlist.
//
// Calls POST /add-to-playlist on the microservice.
func (y *YouTubeService) AddTrack(ctx context.Context, playlistID, videoID string) error {
	body := map[string]string{"playlistId": playlistID, "videoId": videoID}
	if _, err := y.doRequest(ctx, http.MethodPost, "/add-to-playlist", body); err != nil {
		return fmt.Errorf("failed to add %s to %s: %w", videoID, playlistID, err)
	}
	return nil
}

// HealthCheck probes GET /health with a short timeout.
func (y *YouTubeService) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %d", shared.ErrUpstreamUnavailable, resp.StatusCode)
	}
	return nil
}
