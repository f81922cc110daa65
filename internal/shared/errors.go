package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Admission errors, returned synchronously to the submitter
	ErrValidation          = fmt.Errorf("validation failed")
	ErrCapacity            = fmt.Errorf("server at capacity")
	ErrUpstreamUnavailable = fmt.Errorf("upstream service unavailable")
	ErrPersistence         = fmt.Errorf("persistence failure")
	ErrShuttingDown        = fmt.Errorf("server is shutting down")

	// Pipeline signals
	ErrCancelled     = fmt.Errorf("conversion cancelled")
	ErrTrackNotFound = fmt.Errorf("track not found")

	// Lookup errors
	ErrJobNotFound      = fmt.Errorf("conversion not found")
	ErrPlaylistNotFound = fmt.Errorf("playlist not found")

	// API and service errors
	ErrAPIRequest      = fmt.Errorf("API request failed")
	ErrAccessDenied    = fmt.Errorf("access denied")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
