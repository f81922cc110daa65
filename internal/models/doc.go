// Package models defines domain entities for the playlist conversion service.
//
// The package contains two categories of types:
//
// 1. Data Transfer Objects (DTOs): Lightweight structs exchanged with external services
//   - [SourcePlaylist] : Playlist metadata and simplified tracks read from Spotify
//   - [SourceTrack] : Title, artist and link of one source track
//   - [MatchedTrack] : Best YouTube Music match for a source track
//   - [TargetPlaylist] : Playlist created on YouTube Music
//   - [ConversionResult] : Final report stored on a completed job
//
// 2. Persistent Entities: Database-backed models
//   - [Job] : One conversion, its lifecycle status, progress and result payload
//   - [ActiveJobMarker] : Liveness record for a conversion holding a capacity slot
//
// Persistent entities implement the [Model] interface.
package models
