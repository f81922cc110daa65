package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/sohanagashimani/playlist-converter/internal/formatter"
	"github.com/sohanagashimani/playlist-converter/internal/models"
	"github.com/sohanagashimani/playlist-converter/internal/shared"
	"github.com/sohanagashimani/playlist-converter/internal/tasks"
)

// Convert runs one conversion in this process and prints its progress.
//
// An interrupt cancels the conversion instead of abandoning it.
func (r *Runner) Convert(ctx context.Context, cmd *cli.Command) error {
	playlistURL := cmd.StringArg("url")
	if playlistURL == "" {
		return fmt.Errorf("%w: playlist URL", shared.ErrMissingArgument)
	}

	var format formatter.Format
	if f := cmd.String("export"); f != "" {
		var err error
		if format, err = formatter.ParseFormat(f); err != nil {
			return err
		}
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	progress := make(chan tasks.ProgressUpdate, 64)
	b, err := r.newBackend(ctx, progress)
	if err != nil {
		return err
	}
	defer b.Close()

	r.writePlain("Converting %s\n\n", playlistURL)

	watched := make(chan struct{})
	go func() {
		defer close(watched)
		for update := range progress {
			r.printProgress(update)
		}
	}()

	id, err := b.orchestrator.Submit(ctx, playlistURL)
	if err != nil {
		close(progress)
		<-watched
		return err
	}

	r.logger.Info("conversion started", "id", id)

	done := make(chan struct{})
	go func() {
		b.orchestrator.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-sigCtx.Done():
		r.logger.Warn("interrupted, cancelling conversion", "id", id)
		if _, err := b.orchestrator.Cancel(context.Background(), id); err != nil {
			r.logger.Warn("failed to cancel conversion", "id", id, "error", err)
		}
		<-done
	}
	close(progress)
	<-watched

	job, err := b.orchestrator.Status(context.Background(), id)
	if err != nil {
		return err
	}
	return r.reportJob(job, format, cmd.String("output"))
}

func (r *Runner) printProgress(update tasks.ProgressUpdate) {
	switch update.Phase {
	case tasks.FetchSource:
		r.writePlain("📥 %s\n", update.Message)
	case tasks.SearchTracks:
		if update.Step <= 1 {
			r.writePlain("\n🔍 Searching YouTube Music...\n")
		}
		r.writePlain("   %s\n", update.Message)
	case tasks.CreatePlaylist:
		r.writePlain("\n📝 %s\n", update.Message)
	case tasks.AddTracks:
		r.writePlain("   %s\n", update.Message)
	case tasks.Finalize:
		r.writePlain("\n✓ %s\n", update.Message)
	}
}

// reportJob prints the outcome of a finished job and optionally writes its track report.
func (r *Runner) reportJob(job *models.Job, format formatter.Format, output string) error {
	switch job.Status() {
	case models.StatusCompleted:
	case models.StatusCancelled:
		r.writePlainln("Conversion %s", statusLabel(job.Status()))
		return nil
	default:
		r.writePlainln("Conversion %s: %s", statusLabel(job.Status()), job.ErrorMessage())
		return fmt.Errorf("conversion %s: %s", job.Status(), job.ErrorMessage())
	}

	result, err := formatter.FromJob(job)
	if err != nil {
		return err
	}

	r.writePlain("\n")
	r.writePlainHeader("Conversion Complete!")
	r.writePlain("Conversion ID: %s\n", job.ID())
	if result.TargetPlaylist != nil {
		r.writePlain("Playlist: %s\n", result.TargetPlaylist.Title)
	}
	r.writePlain("URL: %s\n", result.TargetPlaylistURL)
	r.writePlain("Matched: %d/%d tracks\n", result.SuccessfulTracks, result.TotalTracks)
	if result.TracksFailedToAdd > 0 {
		r.writePlain("%s\n", warnStyle.Render(fmt.Sprintf("Not added: %d tracks", result.TracksFailedToAdd)))
	}

	if result.FailedTracks > 0 {
		r.writePlain("\nFailed to match %d tracks:\n", result.FailedTracks)
		for _, track := range result.Tracks {
			if !track.Success {
				r.writePlain("  - %s - %s\n", track.OriginalArtist, track.OriginalTitle)
			}
		}
	}

	if format == "" {
		return nil
	}
	path, err := formatter.WriteExport(result, format, output)
	if err != nil {
		return err
	}
	r.logger.Info("track report written", "path", path)
	return r.writePlain("\n✓ Report saved to %s\n", path)
}
