package models

import "time"

// SourceTrack is a simplified track read from the source playlist.
type SourceTrack struct {
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	SourceURL  string `json:"spotifyUrl,omitempty"`
	DurationMs int    `json:"durationMs,omitempty"`
}

// SourcePlaylist is a source playlist with its full track listing.
type SourcePlaylist struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	URL         string        `json:"url"`
	Tracks      []SourceTrack `json:"tracks"`
}

// MatchedTrack is the YouTube Music search result chosen for a source track.
type MatchedTrack struct {
	VideoID  string   `json:"videoId"`
	Title    string   `json:"title"`
	Artists  []string `json:"artists"`
	Duration string   `json:"duration,omitempty"`
}

// PlaylistRequest describes a target playlist to create.
//
// VideoIDs may be empty, in which case tracks are added one by one afterwards.
type PlaylistRequest struct {
	Title       string
	Description string
	VideoIDs    []string
	JobID       string
}

// TargetPlaylist is a playlist created on YouTube Music.
//
// AddError is set when the playlist was created but adding tracks failed.
type TargetPlaylist struct {
	ID          string `json:"playlistId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	TracksAdded int    `json:"-"`
	AddError    string `json:"-"`
}

// TrackOutcome records whether one source track was matched.
type TrackOutcome struct {
	OriginalTitle  string        `json:"originalTitle"`
	OriginalArtist string        `json:"originalArtist"`
	SourceURL      string        `json:"spotifyUrl,omitempty"`
	Match          *MatchedTrack `json:"ytMusicResult"`
	Success        bool          `json:"success"`
	Error          string        `json:"error,omitempty"`
}

// ConversionResult is the report stored on a completed job.
//
// SuccessfulTracks + FailedTracks always equals TotalTracks.
type ConversionResult struct {
	SourcePlaylistURL string          `json:"spotifyPlaylistUrl"`
	TargetPlaylistURL string          `json:"ytMusicPlaylistUrl"`
	TargetPlaylist    *TargetPlaylist `json:"ytMusicPlaylist"`
	Tracks            []TrackOutcome  `json:"tracks"`
	TotalTracks       int             `json:"totalTracks"`
	SuccessfulTracks  int             `json:"successfulTracks"`
	FailedTracks      int             `json:"failedTracks"`
	TracksAdded       int             `json:"tracksAdded"`
	TracksFailedToAdd int             `json:"tracksFailedToAdd"`
	ConversionID      string          `json:"conversionId"`
	Timestamp         time.Time       `json:"timestamp"`
}

// NewConversionResult tallies outcomes into a result for the given target playlist.
func NewConversionResult(jobID, sourceURL string, target *TargetPlaylist, outcomes []TrackOutcome, now time.Time) *ConversionResult {
	r := &ConversionResult{
		SourcePlaylistURL: sourceURL,
		TargetPlaylist:    target,
		Tracks:            outcomes,
		TotalTracks:       len(outcomes),
		ConversionID:      jobID,
		Timestamp:         now,
	}
	for _, o := range outcomes {
		if o.Success {
			r.SuccessfulTracks++
		}
	}
	r.FailedTracks = r.TotalTracks - r.SuccessfulTracks

	if target != nil {
		r.TargetPlaylistURL = target.URL
		r.TracksAdded = target.TracksAdded
		r.TracksFailedToAdd = max(0, r.SuccessfulTracks-target.TracksAdded)
	}
	return r
}

// Payload flattens the result into a job payload.
func (r *ConversionResult) Payload() Payload {
	p := Payload{
		"spotifyPlaylistUrl": r.SourcePlaylistURL,
		"ytMusicPlaylistUrl": r.TargetPlaylistURL,
		"tracks":             r.Tracks,
		"totalTracks":        r.TotalTracks,
		"successfulTracks":   r.SuccessfulTracks,
		"failedTracks":       r.FailedTracks,
		"tracksAdded":        r.TracksAdded,
		"tracksFailedToAdd":  r.TracksFailedToAdd,
		"conversionId":       r.ConversionID,
		"timestamp":          r.Timestamp.UTC().Format(time.RFC3339),
	}
	if r.TargetPlaylist != nil {
		p["ytMusicPlaylist"] = r.TargetPlaylist
	}
	return p
}
