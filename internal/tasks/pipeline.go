package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/sohanagashimani/playlist-converter/internal/models"
	"github.com/sohanagashimani/playlist-converter/internal/shared"
)

// Progress checkpoints of the pipeline.
const (
	progressFetching    = 10
	progressCreating    = 20
	progressSearchStart = 30
	progressSearchSpan  = 35
	progressPopulate    = 65
	progressAddSpan     = 30
	progressFinalizing  = 95
	progressCompleted   = 100
)

// errStopped ends a pipeline whose terminal status was already written by someone else.
var errStopped = errors.New("conversion stopped")

func (o *Orchestrator) pipeline(ctx context.Context, id, sourceURL string, logger *log.Logger) error {
	if err := o.checkpoint(ctx, id, true); err != nil {
		return err
	}
	if err := o.update(ctx, id, models.StatusFetchingSource, progressFetching, nil); err != nil {
		return err
	}
	o.sendProgress(fetchingSourceUpdate(id))
	logger.Info("fetching source playlist", "url", sourceURL)

	playlist, err := o.source.FetchPlaylist(ctx, sourceURL)
	if err != nil {
		return err
	}
	if err := o.checkpoint(ctx, id, true); err != nil {
		return err
	}

	total := len(playlist.Tracks)
	if total == 0 {
		logger.Warn("source playlist has no tracks", "playlist", playlist.Name)
		return o.update(ctx, id, models.StatusFailed, 0, models.Payload{"error": msgEmptyPlaylist})
	}
	o.sendProgress(foundPlaylistUpdate(id, playlist))
	logger.Info("found tracks to convert", "playlist", playlist.Name, "tracks", total)

	if err := o.update(ctx, id, models.StatusCreatingPlaylist, progressCreating, models.Payload{
		"playlistName": playlist.Name,
		"totalTracks":  total,
	}); err != nil {
		return err
	}
	req := models.PlaylistRequest{
		Title:       fmt.Sprintf("%s (Converted)", playlist.Name),
		Description: fmt.Sprintf("Converted from Spotify playlist: %s\nOriginal URL: %s", playlist.Name, sourceURL),
		JobID:       id,
	}

	if err := o.checkpoint(ctx, id, true); err != nil {
		return err
	}
	if err := o.update(ctx, id, models.StatusConvertingTracks, progressSearchStart, nil); err != nil {
		return err
	}

	outcomes, videoIDs, err := o.searchTracks(ctx, id, playlist.Tracks, logger)
	if err != nil {
		return err
	}
	if err := o.checkpoint(ctx, id, true); err != nil {
		return err
	}

	if len(videoIDs) == 0 {
		logger.Warn("no tracks matched", "tracks", total)
		return o.update(ctx, id, models.StatusFailed, 0, models.Payload{
			"error":            msgNoMatches,
			"tracks":           outcomes,
			"totalTracks":      total,
			"successfulTracks": 0,
			"failedTracks":     total,
			"currentTrack":     nil,
		})
	}

	if err := o.update(ctx, id, models.StatusConvertingTracks, progressPopulate, models.Payload{
		"message":      fmt.Sprintf("Creating playlist with %d found tracks...", len(videoIDs)),
		"tracksToAdd":  len(videoIDs),
		"currentTrack": nil,
	}); err != nil {
		return err
	}

	req.VideoIDs = videoIDs
	target, err := o.populate(ctx, id, req, logger)
	if err != nil {
		return err
	}
	if target.URL == "" {
		target.URL = o.matcher.PlaylistURL(target.ID)
	}
	if target.AddError != "" {
		logger.Warn("some tracks were not added", "added", target.TracksAdded, "matched", len(videoIDs), "error", target.AddError)
	}

	if err := o.update(ctx, id, models.StatusConvertingTracks, progressFinalizing, models.Payload{
		"message":     "Finalizing conversion...",
		"tracksAdded": target.TracksAdded,
	}); err != nil {
		return err
	}

	result := models.NewConversionResult(id, sourceURL, target, outcomes, o.opts.Clock())
	payload := result.Payload()
	payload["message"] = fmt.Sprintf("Conversion completed! %d out of %d tracks were successfully added to YouTube Music.", result.SuccessfulTracks, result.TotalTracks)

	// The last look at the cancellation flag before the completed write.
	if err := o.checkpoint(ctx, id, true); err != nil {
		return err
	}
	if err := o.update(ctx, id, models.StatusCompleted, progressCompleted, payload); err != nil {
		return err
	}

	o.sendProgress(completedUpdate(id, result))
	logger.Info("conversion completed", "successful", result.SuccessfulTracks, "total", result.TotalTracks, "playlist", result.TargetPlaylistURL)
	return nil
}

// searchTracks searches every track in order and returns the outcomes with the matched video ids.
func (o *Orchestrator) searchTracks(ctx context.Context, id string, tracks []models.SourceTrack, logger *log.Logger) ([]models.TrackOutcome, []string, error) {
	total := len(tracks)
	interval := progressInterval(total)
	limiter := newLimiter(o.opts.SearchDelay)

	outcomes := make([]models.TrackOutcome, 0, total)
	videoIDs := make([]string, 0, total)

	for i, track := range tracks {
		if err := o.checkpoint(ctx, id, false); err != nil {
			return nil, nil, err
		}

		if shouldReport(i, total, interval) {
			if err := o.update(ctx, id, models.StatusConvertingTracks, searchProgress(i, total), models.Payload{
				"currentTrack": fmt.Sprintf("%s by %s", track.Title, track.Artist),
				"processed":    i + 1,
				"total":        total,
			}); err != nil {
				return nil, nil, err
			}
		}
		o.sendProgress(searchTrackUpdate(id, i+1, total, track))

		if err := limiter.Wait(ctx); err != nil {
			return nil, nil, err
		}
		// A cancel may land during the pacing delay.
		if err := o.checkpoint(ctx, id, false); err != nil {
			return nil, nil, err
		}

		outcome, err := o.searchTrack(ctx, track, logger)
		if err != nil {
			return nil, nil, err
		}
		if outcome.Success {
			videoIDs = append(videoIDs, outcome.Match.VideoID)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, videoIDs, nil
}

// searchTrack records the outcome of one search. Only a cancellation is returned as an error.
func (o *Orchestrator) searchTrack(ctx context.Context, track models.SourceTrack, logger *log.Logger) (models.TrackOutcome, error) {
	outcome := models.TrackOutcome{
		OriginalTitle:  track.Title,
		OriginalArtist: track.Artist,
		SourceURL:      track.SourceURL,
	}

	match, err := o.matcher.SearchTrack(ctx, track.Title, track.Artist)
	switch {
	case err == nil && match != nil && match.VideoID != "":
		outcome.Match = match
		outcome.Success = true
		o.metrics.Searched("matched")
	case err == nil || errors.Is(err, shared.ErrTrackNotFound):
		outcome.Error = msgNoMatch
		o.metrics.Searched("unmatched")
		logger.Debug("no match", "title", track.Title, "artist", track.Artist)
	case errors.Is(err, shared.ErrCancelled):
		return outcome, err
	default:
		outcome.Error = fmt.Sprintf("Search failed: %v", err)
		o.metrics.Searched("error")
		logger.Warn("track search failed", "title", track.Title, "artist", track.Artist, "error", err)
	}
	return outcome, nil
}

// populate creates the target playlist holding req.VideoIDs.
//
// Tracks that fail to add are reported on the returned playlist and never fail the job.
func (o *Orchestrator) populate(ctx context.Context, id string, req models.PlaylistRequest, logger *log.Logger) (*models.TargetPlaylist, error) {
	o.sendProgress(createPlaylistUpdate(id, len(req.VideoIDs)))
	logger.Info("creating target playlist", "title", req.Title, "tracks", len(req.VideoIDs), "sequential", o.opts.SequentialAdd)

	if !o.opts.SequentialAdd {
		return o.matcher.CreatePlaylist(ctx, req)
	}

	videoIDs := req.VideoIDs
	req.VideoIDs = nil
	target, err := o.matcher.CreatePlaylist(ctx, req)
	if err != nil {
		return nil, err
	}

	total := len(videoIDs)
	interval := progressInterval(total)
	limiter := newLimiter(o.opts.SearchDelay)
	failed := 0

	for i, videoID := range videoIDs {
		if err := o.checkpoint(ctx, id, false); err != nil {
			return nil, err
		}
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
		if err := o.checkpoint(ctx, id, false); err != nil {
			return nil, err
		}

		if err := o.matcher.AddTrack(ctx, target.ID, videoID); err != nil {
			if errors.Is(err, shared.ErrCancelled) {
				return nil, err
			}
			failed++
			logger.Warn("failed to add track", "video", videoID, "error", err)
		} else {
			target.TracksAdded++
		}

		o.sendProgress(addTrackUpdate(id, i+1, total))
		if shouldReport(i, total, interval) {
			if err := o.update(ctx, id, models.StatusConvertingTracks, addProgress(i+1, total), models.Payload{
				"tracksAdded": target.TracksAdded,
				"tracksToAdd": total,
			}); err != nil {
				return nil, err
			}
		}
	}

	if failed > 0 {
		target.AddError = fmt.Sprintf("%d of %d tracks could not be added", failed, total)
	}
	return target, nil
}

// checkpoint reports whether the pipeline may continue.
//
// durable additionally re-reads the job when the store is shared with other processes.
func (o *Orchestrator) checkpoint(ctx context.Context, id string, durable bool) error {
	if o.cancellations.Has(id) {
		return errStopped
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if durable && o.opts.SharedIndex {
		job, err := o.jobs.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("reading conversion state: %w", err)
		}
		if job.Status().Terminal() {
			return errStopped
		}
	}
	return nil
}

// update persists a stage transition. A refused write means the job was finished elsewhere.
func (o *Orchestrator) update(ctx context.Context, id string, status models.JobStatus, progress int, payload models.Payload) error {
	applied, err := o.jobs.UpdateStatus(ctx, id, status, progress, payload)
	if err != nil {
		return fmt.Errorf("%w: updating conversion to %s: %v", shared.ErrPersistence, status, err)
	}
	if !applied {
		return errStopped
	}
	return nil
}

// newLimiter spaces successive calls at least delay apart. The first call is not delayed.
func newLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// progressInterval returns how many tracks pass between persisted progress updates.
func progressInterval(total int) int {
	switch {
	case total <= 20:
		return 3
	case total <= 50:
		return 5
	default:
		return 10
	}
}

// shouldReport is true for the first item, the last item and every interval-th item.
func shouldReport(i, total, interval int) bool {
	return i == 0 || (i+1)%interval == 0 || i == total-1
}

// searchProgress maps track i of total onto 30..64.
func searchProgress(i, total int) int {
	return progressSearchStart + i*progressSearchSpan/total
}

// addProgress maps done of total additions onto 65..95.
func addProgress(done, total int) int {
	return progressPopulate + done*progressAddSpan/total
}
