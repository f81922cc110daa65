package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/sohanagashimani/playlist-converter/internal/formatter"
	"github.com/sohanagashimani/playlist-converter/internal/models"
	"github.com/sohanagashimani/playlist-converter/internal/server"
	"github.com/sohanagashimani/playlist-converter/internal/shared"
	"github.com/sohanagashimani/playlist-converter/internal/tasks"
)

const apiPrefix = "/api/playlist"

// JobsStart submits a playlist to a running server.
func (r *Runner) JobsStart(ctx context.Context, cmd *cli.Command) error {
	playlistURL := cmd.StringArg("url")
	if playlistURL == "" {
		return fmt.Errorf("%w: playlist URL", shared.ErrMissingArgument)
	}

	var started server.StartedConversion
	env, err := r.client(cmd).Call(ctx, http.MethodPost, apiPrefix+"/start-conversion",
		server.ConversionRequest{SpotifyPlaylistURL: playlistURL}, &started)
	if err != nil {
		return err
	}

	r.writePlain("✓ %s\n", env.Message)
	return r.writePlain("Conversion ID: %s\n", started.ConversionID)
}

// JobsList prints recent conversions, newest first.
func (r *Runner) JobsList(ctx context.Context, cmd *cli.Command) error {
	var jobs []*models.Job
	if _, err := r.client(cmd).Call(ctx, http.MethodGet, apiPrefix+"/conversions", nil, &jobs); err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(jobs, true)
	}

	if len(jobs) == 0 {
		return r.writePlain("No conversions found\n")
	}

	r.writePlainHeader(fmt.Sprintf("Conversions (%d)", len(jobs)))
	for _, job := range jobs {
		r.writePlain("%s  %-20s %s  %s\n",
			job.ID(),
			statusLabel(job.Status()),
			progressBar(job.Progress()),
			mutedStyle.Render(job.UpdatedAt().Local().Format(time.DateTime)),
		)
	}
	return nil
}

// JobsStatus prints one conversion's status.
func (r *Runner) JobsStatus(ctx context.Context, cmd *cli.Command) error {
	job, err := r.fetchJob(ctx, cmd)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(job, true)
	}

	r.writePlainHeader("Conversion " + job.ID())
	r.writePlain("Status:   %s\n", statusLabel(job.Status()))
	r.writePlain("Progress: %s\n", progressBar(job.Progress()))
	r.writePlain("Source:   %s\n", job.SourcePlaylistURL())
	if msg := job.Result().String("message"); msg != "" {
		r.writePlain("Message:  %s\n", msg)
	}
	if msg := job.ErrorMessage(); msg != "" {
		r.writePlain("Error:    %s\n", errStyle.Render(msg))
	}
	if link := job.Result().String("ytMusicPlaylistUrl"); link != "" {
		r.writePlain("Playlist: %s\n", link)
	}
	r.writePlain("Updated:  %s\n", job.UpdatedAt().Local().Format(time.DateTime))
	return nil
}

// JobsCancel asks the server to cancel a conversion.
func (r *Runner) JobsCancel(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: conversion id", shared.ErrMissingArgument)
	}

	var res server.CancelledConversion
	env, err := r.client(cmd).Call(ctx, http.MethodPost, apiPrefix+"/cancel-conversion/"+url.PathEscape(id), nil, &res)
	if err != nil {
		return err
	}

	if res.Acknowledged {
		return r.writePlain("✓ %s\n", env.Message)
	}
	return r.writePlain("%s (%s)\n", env.Message, statusLabel(res.Status))
}

// JobsExport writes a completed conversion's track report.
func (r *Runner) JobsExport(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	job, err := r.fetchJob(ctx, cmd)
	if err != nil {
		return err
	}

	result, err := formatter.FromJob(job)
	if err != nil {
		return err
	}

	output := cmd.String("output")
	if output == "-" {
		data, err := formatter.Export(result, format)
		if err != nil {
			return err
		}
		if _, err := r.output.Write(data); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}

	path, err := formatter.WriteExport(result, format, output)
	if err != nil {
		return err
	}
	r.logger.Info("track report written", "path", path)
	return r.writePlain("✓ Exported %d tracks to %s\n", result.TotalTracks, path)
}

// System prints the server's load and capacity.
func (r *Runner) System(ctx context.Context, cmd *cli.Command) error {
	var status tasks.SystemStatus
	if _, err := r.client(cmd).Call(ctx, http.MethodGet, apiPrefix+"/system-status", nil, &status); err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(status, true)
	}

	accepting := okStyle.Render("yes")
	if !status.CanAcceptNewJobs {
		accepting = errStyle.Render("no")
	}

	r.writePlainHeader("System Status")
	r.writePlain("Active:       %d/%d\n", status.ActiveJobs, status.MaxConcurrentJobs)
	r.writePlain("Load:         %s\n", loadLabel(status.LoadPercentage))
	r.writePlain("Accepting:    %s\n", accepting)
	r.writePlain("Search delay: %dms\n", status.SearchDelayMs)
	r.writePlain("Uptime:       %s\n", (time.Duration(status.UptimeSeconds) * time.Second).String())
	for _, id := range status.ActiveJobIDs {
		r.writePlain("  - %s\n", id)
	}
	return nil
}

func (r *Runner) fetchJob(ctx context.Context, cmd *cli.Command) (*models.Job, error) {
	id := cmd.StringArg("id")
	if id == "" {
		return nil, fmt.Errorf("%w: conversion id", shared.ErrMissingArgument)
	}

	var job models.Job
	if _, err := r.client(cmd).Call(ctx, http.MethodGet, apiPrefix+"/conversion-status/"+url.PathEscape(id), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}
