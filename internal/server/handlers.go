package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sohanagashimani/playlist-converter/internal/metrics"
	"github.com/sohanagashimani/playlist-converter/internal/models"
	"github.com/sohanagashimani/playlist-converter/internal/shared"
)

const maxBodyBytes = 1 << 20

// Response is the JSON envelope of every API response.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ConversionRequest is the body of a start-conversion request.
type ConversionRequest struct {
	SpotifyPlaylistURL string `json:"spotifyPlaylistUrl"`
}

// StartedConversion is returned for an admitted conversion.
type StartedConversion struct {
	ConversionID string `json:"conversionId"`
}

// CancelledConversion is returned for a cancellation request.
type CancelledConversion struct {
	ConversionID string           `json:"conversionId"`
	Acknowledged bool             `json:"acknowledged"`
	Status       models.JobStatus `json:"status"`
}

// HealthReport is returned by the playlist health route.
type HealthReport struct {
	Backend        bool      `json:"backend"`
	YTMusicService bool      `json:"ytmusicService"`
	Timestamp      time.Time `json:"timestamp"`
}

// ConversionHandler serves the /api/playlist routes.
type ConversionHandler struct {
	conversions Conversions
	logger      *log.Logger
	mux         *http.ServeMux
}

// NewConversionHandler creates a ConversionHandler. A nil limiter disables submission rate limiting.
func NewConversionHandler(conversions Conversions, limiter *RateLimiter, logger *log.Logger) *ConversionHandler {
	h := &ConversionHandler{
		conversions: conversions,
		logger:      logger,
		mux:         http.NewServeMux(),
	}

	var start http.Handler = http.HandlerFunc(h.startConversion)
	if limiter != nil {
		start = RateLimit(limiter)(start)
	}

	h.mux.Handle("POST /api/playlist/start-conversion", start)
	h.mux.HandleFunc("GET /api/playlist/conversion-status/{id}", h.conversionStatus)
	h.mux.HandleFunc("POST /api/playlist/cancel-conversion/{id}", h.cancelConversion)
	h.mux.HandleFunc("GET /api/playlist/conversions", h.listConversions)
	h.mux.HandleFunc("GET /api/playlist/system-status", h.systemStatus)
	h.mux.HandleFunc("GET /api/playlist/health", h.health)
	return h
}

// Routes implements [Handler].
func (h *ConversionHandler) Routes() []string {
	return []string{
		"POST /api/playlist/start-conversion",
		"GET /api/playlist/conversion-status/{id}",
		"POST /api/playlist/cancel-conversion/{id}",
		"GET /api/playlist/conversions",
		"GET /api/playlist/system-status",
		"GET /api/playlist/health",
	}
}

func (h *ConversionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *ConversionHandler) startConversion(w http.ResponseWriter, r *http.Request) {
	var req ConversionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.fail(w, fmt.Errorf("%w: invalid JSON body: %v", shared.ErrValidation, err))
		return
	}

	id, err := h.conversions.Submit(r.Context(), req.SpotifyPlaylistURL)
	if err != nil {
		h.fail(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, Response{
		Success: true,
		Data:    StartedConversion{ConversionID: id},
		Message: "Conversion started! Check back in a few minutes to see the results.",
	})
}

func (h *ConversionHandler) conversionStatus(w http.ResponseWriter, r *http.Request) {
	job, err := h.conversions.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    job,
		Message: fmt.Sprintf("Conversion status: %s", job.Status()),
	})
}

func (h *ConversionHandler) cancelConversion(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, err := h.conversions.Cancel(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    CancelledConversion{ConversionID: id, Acknowledged: res.Acknowledged, Status: res.Status},
		Message: res.Message,
	})
}

func (h *ConversionHandler) listConversions(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.conversions.List(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	if jobs == nil {
		jobs = []*models.Job{}
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    jobs,
		Message: fmt.Sprintf("Found %d conversions", len(jobs)),
	})
}

func (h *ConversionHandler) systemStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.conversions.SystemStatus(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: status, Message: "System status retrieved"})
}

func (h *ConversionHandler) health(w http.ResponseWriter, r *http.Request) {
	err := h.conversions.UpstreamHealth(r.Context())
	if err != nil {
		h.logger.Warn("upstream health check failed", "error", err)
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    HealthReport{Backend: true, YTMusicService: err == nil, Timestamp: time.Now().UTC()},
	})
}

func (h *ConversionHandler) fail(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "status", status, "error", err)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "60")
	}
	writeJSON(w, status, Response{Error: errorMessage(err)})
}

// StatusFor maps an orchestrator error onto an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrCapacity),
		errors.Is(err, shared.ErrUpstreamUnavailable),
		errors.Is(err, shared.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	if errors.Is(err, shared.ErrJobNotFound) {
		return "Conversion not found or expired"
	}
	return err.Error()
}

// HealthHandler answers the liveness probe.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "OK", "timestamp": time.Now().UTC()})
}

// APIOptions configures [NewAPI].
type APIOptions struct {
	Logger   *log.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	// RateLimit is the number of submissions per client per minute; zero disables limiting.
	RateLimit int
	RateBurst int
	// TrustProxy keys the rate limit on X-Forwarded-For instead of the remote address.
	TrustProxy bool
}

// NewAPI assembles the full HTTP API over conversions.
func NewAPI(conversions Conversions, opts APIOptions) *BasicRouter {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	var limiter *RateLimiter
	if opts.RateLimit > 0 {
		limiter = NewRateLimiter(opts.RateLimit, opts.RateBurst, opts.TrustProxy)
	}

	r := NewBasicRouter()
	r.Use(RequestLogger(logger, opts.Metrics), Recoverer(logger))
	r.Handler(NewConversionHandler(conversions, limiter, logger))
	r.Handle(http.MethodGet, "/api/health", http.HandlerFunc(HealthHandler))
	if opts.Gatherer != nil {
		r.Handle(http.MethodGet, "/metrics", metrics.Handler(opts.Gatherer))
	}
	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
