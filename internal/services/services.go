// package services defines the clients for the external services a conversion talks to
//
// Spotify (source catalog), YouTube Music (via the matching microservice)
package services

import (
	"context"

	"github.com/sohanagashimani/playlist-converter/internal/models"
)

// PlaylistSource reads playlists from the source catalog.
type PlaylistSource interface {
	// FetchPlaylist resolves a playlist URL and returns its metadata and every track.
	// Returns an error for malformed URLs, missing or private playlists.
	FetchPlaylist(ctx context.Context, playlistURL string) (*models.SourcePlaylist, error)

	// Name returns the name of the service (e.g., "Spotify")
	Name() string
}

// TrackMatcher finds tracks on the target service and builds playlists there.
type TrackMatcher interface {
	// SearchTrack searches for a track by title and artist.
	// Returns the best match or an error wrapping [shared.ErrTrackNotFound] if nothing suitable exists.
	SearchTrack(ctx context.Context, title, artist string) (*models.MatchedTrack, error)

	// CreatePlaylist creates a playlist and, when req.VideoIDs is set, populates it in one batch.
	// A failed batch add is reported on [models.TargetPlaylist.AddError], not as an error.
	CreatePlaylist(ctx context.Context, req models.PlaylistRequest) (*models.TargetPlaylist, error)

	// AddTrack appends a single track to an existing playlist.
	AddTrack(ctx context.Context, playlistID, videoID string) error

	// HealthCheck returns nil when the service is reachable.
	HealthCheck(ctx context.Context) error

	// PlaylistURL returns the public URL of a playlist.
	PlaylistURL(playlistID string) string

	// Name returns the name of the service (e.g., "YouTube Music")
	Name() string
}
