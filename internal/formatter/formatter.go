// package formatter renders conversion results as CSV, Markdown or plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sohanagashimani/playlist-converter/internal/models"
	"github.com/sohanagashimani/playlist-converter/internal/shared"
)

// Format names an export format.
type Format string

const (
	FormatText     Format = "text"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
)

// ParseFormat accepts text, txt, csv, markdown and md.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("%w: unknown format %q (use text, csv or markdown)", shared.ErrInvalidArgument, s)
}

// Extension returns the file extension for f, without the dot.
func (f Format) Extension() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatMarkdown:
		return "md"
	default:
		return "txt"
	}
}

// FromJob decodes the conversion result stored on a completed job.
func FromJob(job *models.Job) (*models.ConversionResult, error) {
	if job.Status() != models.StatusCompleted {
		return nil, fmt.Errorf("%w: conversion %s is %s, not completed", shared.ErrInvalidArgument, job.ID(), job.Status())
	}
	data, err := json.Marshal(job.Result())
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	var result models.ConversionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return &result, nil
}

// Export renders result in format f.
func Export(result *models.ConversionResult, f Format) ([]byte, error) {
	switch f {
	case FormatCSV:
		return ExportToCSV(result)
	case FormatMarkdown:
		return ExportToMarkdown(result)
	default:
		return ExportToText(result)
	}
}

// ExportToCSV writes one row per source track with its match.
func ExportToCSV(result *models.ConversionResult) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Position", "Title", "Artist", "Spotify URL", "Matched", "Video ID", "YouTube Title", "YouTube Artists", "Error"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for i, track := range result.Tracks {
		var videoID, title, artists string
		if track.Match != nil {
			videoID = track.Match.VideoID
			title = track.Match.Title
			artists = strings.Join(track.Match.Artists, ", ")
		}
		record := []string{
			strconv.Itoa(i + 1),
			track.OriginalTitle,
			track.OriginalArtist,
			track.SourceURL,
			strconv.FormatBool(track.Success),
			videoID,
			title,
			artists,
			track.Error,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown renders a summary and a checklist of matched and missing tracks.
func ExportToMarkdown(result *models.ConversionResult) ([]byte, error) {
	var buf bytes.Buffer

	title := "Conversion " + result.ConversionID
	if result.TargetPlaylist != nil && result.TargetPlaylist.Title != "" {
		title = result.TargetPlaylist.Title
	}
	fmt.Fprintf(&buf, "# %s\n\n", title)

	if result.TargetPlaylistURL != "" {
		fmt.Fprintf(&buf, "**YouTube Music**: [%s](%s)\n", result.TargetPlaylistURL, result.TargetPlaylistURL)
	}
	fmt.Fprintf(&buf, "**Spotify**: %s\n", result.SourcePlaylistURL)
	fmt.Fprintf(&buf, "**Matched**: %d/%d (%s)\n", result.SuccessfulTracks, result.TotalTracks, matchRate(result))
	if result.TracksFailedToAdd > 0 {
		fmt.Fprintf(&buf, "**Not added**: %d\n", result.TracksFailedToAdd)
	}
	if !result.Timestamp.IsZero() {
		fmt.Fprintf(&buf, "**Converted**: %s\n", result.Timestamp.UTC().Format("2006-01-02 15:04 MST"))
	}

	buf.WriteString("\n## Tracks\n\n")
	for _, track := range result.Tracks {
		if track.Success && track.Match != nil {
			fmt.Fprintf(&buf, "- [x] %s - %s → %s\n", track.OriginalArtist, track.OriginalTitle, track.Match.Title)
			continue
		}
		fmt.Fprintf(&buf, "- [ ] %s - %s (%s)\n", track.OriginalArtist, track.OriginalTitle, track.Error)
	}

	return buf.Bytes(), nil
}

// ExportToText renders result as plain text.
func ExportToText(result *models.ConversionResult) ([]byte, error) {
	var buf bytes.Buffer

	if result.TargetPlaylist != nil {
		fmt.Fprintf(&buf, "Playlist: %s\n", result.TargetPlaylist.Title)
	}
	fmt.Fprintf(&buf, "URL: %s\n", result.TargetPlaylistURL)
	fmt.Fprintf(&buf, "Matched: %d/%d (%s)\n\n", result.SuccessfulTracks, result.TotalTracks, matchRate(result))

	for i, track := range result.Tracks {
		mark := "✓"
		if !track.Success {
			mark = "✗"
		}
		fmt.Fprintf(&buf, "%d. %s %s - %s\n", i+1, mark, track.OriginalArtist, track.OriginalTitle)
	}

	return buf.Bytes(), nil
}

func matchRate(result *models.ConversionResult) string {
	if result.TotalTracks == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.0f%%", float64(result.SuccessfulTracks)/float64(result.TotalTracks)*100)
}

// WriteExport writes result in format f to path and returns the path written.
//
// Defaults to {conversionId}_tracks.{ext} as the filename.
func WriteExport(result *models.ConversionResult, f Format, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("%s_tracks.%s", result.ConversionID, f.Extension())
	}

	data, err := Export(result, f)
	if err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", f, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s file: %w", f, err)
	}

	return path, nil
}
