package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tc := []struct {
		name string
		from JobStatus
		to   JobStatus
		want bool
	}{
		{name: "started to fetching", from: StatusStarted, to: StatusFetchingSource, want: true},
		{name: "repeat converting", from: StatusConvertingTracks, to: StatusConvertingTracks, want: true},
		{name: "backwards", from: StatusConvertingTracks, to: StatusFetchingSource, want: false},
		{name: "any to failed", from: StatusCreatingPlaylist, to: StatusFailed, want: true},
		{name: "started to cancelled", from: StatusStarted, to: StatusCancelled, want: true},
		{name: "completed to cancelled", from: StatusCompleted, to: StatusCancelled, want: false},
		{name: "cancelled to completed", from: StatusCancelled, to: StatusCompleted, want: false},
		{name: "interrupted to failed", from: StatusInterrupted, to: StatusFailed, want: false},
		{name: "failed to failed", from: StatusFailed, to: StatusFailed, want: false},
		{name: "unknown target", from: StatusStarted, to: JobStatus("paused"), want: false},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestJobApply(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	job := NewJob("job-1", "https://open.spotify.com/playlist/abc", now)

	if err := job.Validate(); err != nil {
		t.Fatalf("new job should be valid: %v", err)
	}

	later := now.Add(time.Second)
	if !job.Apply(StatusFetchingSource, 10, Payload{"message": "fetching"}, later) {
		t.Fatal("expected forward transition to apply")
	}
	if !job.Apply(StatusConvertingTracks, 30, Payload{"total": 4}, later) {
		t.Fatal("expected forward transition to apply")
	}

	if job.Result().String("message") != "fetching" {
		t.Errorf("earlier payload keys should survive a merge, got %v", job.Result())
	}
	if n, ok := job.Result().Int("total"); !ok || n != 4 {
		t.Errorf("expected total 4, got %v", job.Result()["total"])
	}

	if !job.Apply(StatusConvertingTracks, 20, nil, later) {
		t.Fatal("expected same-status write to apply")
	}
	if job.Progress() != 30 {
		t.Errorf("progress should not decrease while running, got %d", job.Progress())
	}

	if !job.Apply(StatusCompleted, 150, nil, later) {
		t.Fatal("expected completion to apply")
	}
	if job.Progress() != 100 {
		t.Errorf("progress should be clamped to 100, got %d", job.Progress())
	}

	if job.Apply(StatusCancelled, 0, Payload{"error": "late"}, later.Add(time.Second)) {
		t.Error("terminal job should refuse further writes")
	}
	if job.Status() != StatusCompleted || job.ErrorMessage() != "" {
		t.Errorf("refused write must not change the job, got %s %q", job.Status(), job.ErrorMessage())
	}
	if !job.UpdatedAt().Equal(later) {
		t.Errorf("refused write must not touch updatedAt")
	}

	failed := NewJob("job-2", "https://open.spotify.com/playlist/abc", now)
	failed.Apply(StatusConvertingTracks, 50, nil, later)
	if !failed.Apply(StatusFailed, 0, Payload{"error": "boom"}, later) || failed.Progress() != 0 {
		t.Errorf("terminal write should reset progress, got %d", failed.Progress())
	}
}

func TestJobJSON(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	job := NewJob("job-1", "https://open.spotify.com/playlist/abc", now)
	job.Apply(StatusFailed, 0, Payload{"error": "boom"}, now)

	data, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded["status"] != "failed" || decoded["spotifyPlaylistUrl"] != "https://open.spotify.com/playlist/abc" {
		t.Errorf("unexpected document %s", data)
	}

	var back Job
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("decode into Job failed: %v", err)
	}
	if back.ID() != "job-1" || back.ErrorMessage() != "boom" {
		t.Errorf("decoded job mismatch: %s %q", back.ID(), back.ErrorMessage())
	}
}

func TestNewConversionResult(t *testing.T) {
	outcomes := []TrackOutcome{
		{OriginalTitle: "A", Success: true, Match: &MatchedTrack{VideoID: "v1"}},
		{OriginalTitle: "B", Success: false, Error: "No matching track found on YouTube Music"},
		{OriginalTitle: "C", Success: true, Match: &MatchedTrack{VideoID: "v3"}},
	}
	target := &TargetPlaylist{ID: "PL1", URL: "https://music.youtube.com/playlist?list=PL1", TracksAdded: 1}

	r := NewConversionResult("job-1", "https://open.spotify.com/playlist/abc", target, outcomes, time.Now())

	if r.TotalTracks != 3 || r.SuccessfulTracks != 2 || r.FailedTracks != 1 {
		t.Errorf("unexpected tallies %d/%d/%d", r.TotalTracks, r.SuccessfulTracks, r.FailedTracks)
	}
	if r.SuccessfulTracks+r.FailedTracks != r.TotalTracks {
		t.Error("successful + failed must equal total")
	}
	if r.TracksAdded != 1 || r.TracksFailedToAdd != 1 {
		t.Errorf("expected 1 added and 1 failed to add, got %d/%d", r.TracksAdded, r.TracksFailedToAdd)
	}

	p := r.Payload()
	if p.String("ytMusicPlaylistUrl") != target.URL {
		t.Errorf("payload should carry target url, got %v", p["ytMusicPlaylistUrl"])
	}
	if n, _ := p.Int("totalTracks"); n != 3 {
		t.Errorf("payload totalTracks = %d", n)
	}
}

func TestActiveJobMarkerExpired(t *testing.T) {
	now := time.Now()
	m := ActiveJobMarker{JobID: "a", StartedAt: now, ExpiresAt: now.Add(time.Minute)}
	if m.Expired(now) {
		t.Error("fresh marker should be live")
	}
	if !m.Expired(now.Add(time.Minute)) {
		t.Error("marker should expire at ExpiresAt")
	}
}
