package tasks

import (
	"fmt"

	"github.com/sohanagashimani/playlist-converter/internal/models"
)

// ProgressUpdate represents a progress event during a conversion.
//
// Used to send real-time updates to the CLI for display.
type ProgressUpdate struct {
	JobID   string // Conversion the event belongs to
	Phase   Phase  // Pipeline phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Pipeline phase enumeration
type Phase int

const (
	FetchSource Phase = iota
	SearchTracks
	CreatePlaylist
	AddTracks
	Finalize
)

func (p Phase) String() string {
	switch p {
	case FetchSource:
		return "fetch_source"
	case SearchTracks:
		return "search_tracks"
	case CreatePlaylist:
		return "create_playlist"
	case AddTracks:
		return "add_tracks"
	case Finalize:
		return "finalize"
	default:
		return ""
	}
}

func fetchingSourceUpdate(id string) ProgressUpdate {
	return ProgressUpdate{
		JobID:   id,
		Phase:   FetchSource,
		Step:    0,
		Total:   1,
		Message: "Fetching source playlist from Spotify...",
	}
}

func foundPlaylistUpdate(id string, pl *models.SourcePlaylist) ProgressUpdate {
	return ProgressUpdate{
		JobID:   id,
		Phase:   FetchSource,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Found playlist: %s (%d tracks)", pl.Name, len(pl.Tracks)),
		Data:    pl,
	}
}

func searchTrackUpdate(id string, step, total int, tr models.SourceTrack) ProgressUpdate {
	return ProgressUpdate{
		JobID:   id,
		Phase:   SearchTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s - %s", step, total, tr.Artist, tr.Title),
	}
}

func createPlaylistUpdate(id string, tracks int) ProgressUpdate {
	return ProgressUpdate{
		JobID:   id,
		Phase:   CreatePlaylist,
		Step:    0,
		Total:   1,
		Message: fmt.Sprintf("Creating playlist with %d found tracks...", tracks),
	}
}

func addTrackUpdate(id string, step, total int) ProgressUpdate {
	return ProgressUpdate{
		JobID:   id,
		Phase:   AddTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Adding tracks to playlist...", step, total),
	}
}

func completedUpdate(id string, result *models.ConversionResult) ProgressUpdate {
	return ProgressUpdate{
		JobID:   id,
		Phase:   Finalize,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Converted %d/%d tracks: %s", result.SuccessfulTracks, result.TotalTracks, result.TargetPlaylistURL),
		Data:    result,
	}
}
