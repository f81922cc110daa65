package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"
)

// JobStatus is the lifecycle state of a conversion job.
type JobStatus string

const (
	StatusStarted          JobStatus = "started"
	StatusFetchingSource   JobStatus = "fetching-source"
	StatusCreatingPlaylist JobStatus = "creating-playlist"
	StatusConvertingTracks JobStatus = "converting-tracks"
	StatusCompleted        JobStatus = "completed"
	StatusFailed           JobStatus = "failed"
	StatusCancelled        JobStatus = "cancelled"
	StatusInterrupted      JobStatus = "interrupted"
)

// stage orders the non-terminal statuses along the pipeline.
var stage = map[JobStatus]int{
	StatusStarted:          0,
	StatusFetchingSource:   1,
	StatusCreatingPlaylist: 2,
	StatusConvertingTracks: 3,
}

// Terminal reports whether s is a final state a job never leaves.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusInterrupted:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	_, ok := stage[s]
	return ok || s.Terminal()
}

func (s JobStatus) String() string { return string(s) }

// CanTransition reports whether a job in status from may be written with status to.
//
// Non-terminal statuses only move forward along the pipeline or into any terminal status.
// A terminal status accepts no further writes.
func CanTransition(from, to JobStatus) bool {
	if !to.Valid() || from.Terminal() {
		return false
	}
	if to.Terminal() {
		return true
	}
	return stage[to] >= stage[from]
}

// Payload is the open key/value map attached to a job.
//
// Successive status updates merge into it; the final result of a completed
// job is stored here too.
type Payload map[string]any

// Merge returns a copy of p with the keys of other written over it.
func (p Payload) Merge(other Payload) Payload {
	out := make(Payload, len(p)+len(other))
	maps.Copy(out, p)
	maps.Copy(out, other)
	return out
}

// String returns the string stored at key, or "".
func (p Payload) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Int returns the number stored at key, accepting the float64 produced by JSON decoding.
func (p Payload) Int(key string) (int, bool) {
	switch v := p[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}

// Job is the persisted record of one conversion.
type Job struct {
	id                string
	sourcePlaylistURL string
	status            JobStatus
	progress          int
	result            Payload
	createdAt         time.Time
	updatedAt         time.Time
}

// NewJob creates a job in the started state for the given source playlist.
func NewJob(id, sourcePlaylistURL string, now time.Time) *Job {
	return &Job{
		id:                id,
		sourcePlaylistURL: sourcePlaylistURL,
		status:            StatusStarted,
		progress:          0,
		result:            Payload{},
		createdAt:         now,
		updatedAt:         now,
	}
}

// RestoreJob rebuilds a job from stored columns.
func RestoreJob(id, sourcePlaylistURL string, status JobStatus, progress int, result Payload, createdAt, updatedAt time.Time) *Job {
	if result == nil {
		result = Payload{}
	}
	return &Job{
		id:                id,
		sourcePlaylistURL: sourcePlaylistURL,
		status:            status,
		progress:          progress,
		result:            result,
		createdAt:         createdAt,
		updatedAt:         updatedAt,
	}
}

func (j *Job) ID() string { return j.id }
func (j *Job) SourcePlaylistURL() string { return j.sourcePlaylistURL }
func (j *Job) Status() JobStatus { return j.status }
func (j *Job) Progress() int { return j.progress }
func (j *Job) Result() Payload { return j.result }
func (j *Job) CreatedAt() time.Time { return j.createdAt }
func (j *Job) UpdatedAt() time.Time { return j.updatedAt }

// ErrorMessage returns the failure, cancellation or interruption message recorded on the job.
func (j *Job) ErrorMessage() string { return j.result.String("error") }

// Apply records a status write, merging payload into the result.
//
// It refuses any write out of a terminal status and reports whether the job changed.
// Progress never moves backwards until the job reaches a terminal status.
func (j *Job) Apply(status JobStatus, progress int, payload Payload, now time.Time) bool {
	if !CanTransition(j.status, status) {
		return false
	}
	progress = clampProgress(progress)
	if !status.Terminal() {
		progress = max(j.progress, progress)
	}
	j.status = status
	j.progress = progress
	j.result = j.result.Merge(payload)
	j.updatedAt = now
	return true
}

// Validate checks if the job's data is valid
func (j *Job) Validate() error {
	switch {
	case j.id == "":
		return errors.New("job id is required")
	case j.sourcePlaylistURL == "":
		return errors.New("source playlist URL is required")
	case !j.status.Valid():
		return fmt.Errorf("unknown job status %q", j.status)
	case j.progress < 0 || j.progress > 100:
		return fmt.Errorf("progress %d out of range", j.progress)
	}
	return nil
}

type jobJSON struct {
	ID                string    `json:"id"`
	SourcePlaylistURL string    `json:"spotifyPlaylistUrl"`
	Status            JobStatus `json:"status"`
	Progress          int       `json:"progress"`
	Result            Payload   `json:"result"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// MarshalJSON encodes the job as the status document returned to clients.
func (j *Job) MarshalJSON() ([]byte, error) {
	return json.Marshal(jobJSON{
		ID:                j.id,
		SourcePlaylistURL: j.sourcePlaylistURL,
		Status:            j.status,
		Progress:          j.progress,
		Result:            j.result,
		CreatedAt:         j.createdAt,
		UpdatedAt:         j.updatedAt,
	})
}

// UnmarshalJSON decodes a status document, as returned by the HTTP API.
func (j *Job) UnmarshalJSON(data []byte) error {
	var v jobJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*j = *RestoreJob(v.ID, v.SourcePlaylistURL, v.Status, v.Progress, v.Result, v.CreatedAt, v.UpdatedAt)
	return nil
}

func clampProgress(p int) int {
	return max(0, min(100, p))
}
