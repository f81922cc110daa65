package models

import (
	"time"
)

// Model defines the base interface for persistent models in the conversion service.
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	UpdatedAt() time.Time // UpdatedAt returns when this model was last updated
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

// ActiveJobMarker records that a job currently occupies a capacity slot.
//
// Markers whose ExpiresAt has passed are treated as absent.
type ActiveJobMarker struct {
	JobID     string    `json:"jobId"`
	StartedAt time.Time `json:"startedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the marker is no longer live at now.
func (m ActiveJobMarker) Expired(now time.Time) bool {
	return !now.Before(m.ExpiresAt)
}
