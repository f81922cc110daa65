// Package services implements the clients used by a playlist conversion.
//
// # Spotify
//
// [SpotifyService] implements [PlaylistSource] against the Spotify Web API.
// It authenticates with the client credentials grant, so only public
// playlists can be read. Tokens are cached and refreshed by
// [clientcredentials.Config].
//
// # YouTube Music
//
// [YouTubeService] implements [TrackMatcher] by calling the YouTube Music
// matching microservice, which wraps ytmusicapi and handles account
// authentication itself. Endpoints used:
//   - POST /search : best match for a title and artist
//   - POST /create-playlist : create a public playlist
//   - POST /add-batch-to-playlist : append many tracks at once
//   - POST /add-to-playlist : append one track
//   - GET /health : liveness probe
//
// # API client
//
// [APIService] is a thin JSON client for the converter's own HTTP API, used
// by the CLI's remote commands.
//
// # Error Handling
//
// Services wrap typed errors from the shared package:
//   - [shared.ErrValidation] : malformed playlist URL
//   - [shared.ErrPlaylistNotFound] : playlist missing or not public
//   - [shared.ErrAccessDenied] : playlist is private
//   - [shared.ErrTrackNotFound] : search found no suitable match
//   - [shared.ErrCancelled] : the microservice refused work for a cancelled conversion
//   - [shared.ErrAPIRequest] : any other non-2xx response
package services
