// Spotify API implementation of [PlaylistSource]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/sohanagashimani/playlist-converter/internal/models"
	"github.com/sohanagashimani/playlist-converter/internal/shared"
)

const (
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"
	spotifyPageSize = 50
)

const (
	playlistFields = "id,name,description,external_urls,tracks.total,tracks.items(track(name,artists(name),duration_ms,external_urls))"
	pageFields     = "items(track(name,artists(name),duration_ms,external_urls))"
)

var playlistIDPattern = regexp.MustCompile(`playlist/([a-zA-Z0-9]+)`)

type externalURLs struct {
	Spotify string `json:"spotify"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	Name string `json:"name"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	Name         string          `json:"name"`
	Artists      []SpotifyArtist `json:"artists"`
	DurationMS   int             `json:"duration_ms"`
	ExternalURLs externalURLs    `json:"external_urls"`
}

// SpotifyPlaylistTrack represents a track within a playlist context.
//
// Track is nil for removed or unavailable items.
type SpotifyPlaylistTrack struct {
	Track *SpotifyTrack `json:"track"`
}

type playlistTracks struct {
	Total int                    `json:"total"`
	Items []SpotifyPlaylistTrack `json:"items"`
}

// SpotifyPlaylist represents a Spotify playlist.
type SpotifyPlaylist struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	ExternalURLs externalURLs   `json:"external_urls"`
	Tracks       playlistTracks `json:"tracks"`
}

type spotifyErrorBody struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// SpotifyService implements [PlaylistSource] using the client credentials grant.
type SpotifyService struct {
	config     *clientcredentials.Config
	baseURL    string
	httpClient *http.Client
}

// NewSpotifyService creates a new Spotify service with the given client credentials.
//
// Optional keys "token_url" and "api_url" override the Spotify endpoints.
func NewSpotifyService(credentials map[string]string) (*SpotifyService, error) {
	clientID := credentials["client_id"]
	if clientID == "" {
		return nil, fmt.Errorf("%w: client_id", shared.ErrMissingCredentials)
	}

	clientSecret := credentials["client_secret"]
	if clientSecret == "" {
		return nil, fmt.Errorf("%w: client_secret", shared.ErrMissingCredentials)
	}

	tokenURL := credentials["token_url"]
	if tokenURL == "" {
		tokenURL = spotifyTokenURL
	}

	baseURL := credentials["api_url"]
	if baseURL == "" {
		baseURL = spotifyBaseURL
	}

	config := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}

	return &SpotifyService{
		config:     config,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: config.Client(context.Background()),
	}, nil
}

// Name returns the service name.
func (s *SpotifyService) Name() string {
	return "Spotify"
}

// ExtractPlaylistID returns the playlist id embedded in a Spotify playlist URL.
func ExtractPlaylistID(playlistURL string) (string, error) {
	match := playlistIDPattern.FindStringSubmatch(playlistURL)
	if match == nil {
		return "", fmt.Errorf("%w: invalid playlist URL, provide a valid Spotify playlist URL", shared.ErrValidation)
	}
	return match[1], nil
}

// FetchPlaylist retrieves a playlist and all of its tracks, following pagination.
func (s *SpotifyService) FetchPlaylist(ctx context.Context, playlistURL string) (*models.SourcePlaylist, error) {
	id, err := ExtractPlaylistID(playlistURL)
	if err != nil {
		return nil, err
	}

	sp, err := s.Playlist(ctx, id)
	if err != nil {
		return nil, err
	}

	items := sp.Tracks.Items
	for offset := len(items); offset < sp.Tracks.Total; {
		page, err := s.PlaylistTracks(ctx, id, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch tracks at offset %d: %w", offset, err)
		}
		if len(page) == 0 {
			break
		}
		items = append(items, page...)
		offset += len(page)
	}

	return &models.SourcePlaylist{
		ID:          sp.ID,
		Name:        sp.Name,
		Description: sp.Description,
		URL:         sp.ExternalURLs.Spotify,
		Tracks:      SimplifyTracks(items),
	}, nil
}

// Playlist retrieves playlist metadata and the first page of tracks.
func (s *SpotifyService) Playlist(ctx context.Context, playlistID string) (*SpotifyPlaylist, error) {
	params := url.Values{}
	params.Set("fields", playlistFields)
	params.Set("limit", fmt.Sprint(spotifyPageSize))

	var playlist SpotifyPlaylist
	if err := s.doRequest(ctx, "/playlists/"+url.PathEscape(playlistID), params, &playlist); err != nil {
		return nil, err
	}
	return &playlist, nil
}

// PlaylistTracks retrieves one page of playlist tracks starting at offset.
func (s *SpotifyService) PlaylistTracks(ctx context.Context, playlistID string, offset int) ([]SpotifyPlaylistTrack, error) {
	params := url.Values{}
	params.Set("fields", pageFields)
	params.Set("limit", fmt.Sprint(spotifyPageSize))
	params.Set("offset", fmt.Sprint(offset))

	var page struct {
		Items []SpotifyPlaylistTrack `json:"items"`
	}
	if err := s.doRequest(ctx, "/playlists/"+url.PathEscape(playlistID)+"/tracks", params, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

// SimplifyTracks drops unavailable items and flattens artists into a comma separated string.
func SimplifyTracks(items []SpotifyPlaylistTrack) []models.SourceTrack {
	tracks := make([]models.SourceTrack, 0, len(items))
	for _, item := range items {
		if item.Track == nil || item.Track.Name == "" {
			continue
		}

		artists := make([]string, 0, len(item.Track.Artists))
		for _, a := range item.Track.Artists {
			artists = append(artists, a.Name)
		}

		tracks = append(tracks, models.SourceTrack{
			Title:      item.Track.Name,
			Artist:     strings.Join(artists, ", "),
			SourceURL:  item.Track.ExternalURLs.Spotify,
			DurationMs: item.Track.DurationMS,
		})
	}
	return tracks
}

func (s *SpotifyService) doRequest(ctx context.Context, endpoint string, params url.Values, result any) error {
	apiURL := s.baseURL + endpoint
	if len(params) > 0 {
		apiURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("spotify request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: check the URL and ensure the playlist is public", shared.ErrPlaylistNotFound)
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: ensure the playlist is public", shared.ErrAccessDenied)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		var body spotifyErrorBody
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error.Message != "" {
			return fmt.Errorf("%w: spotify (status %d): %s", shared.ErrAPIRequest, resp.StatusCode, body.Error.Message)
		}
		return fmt.Errorf("%w: spotify status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
