package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/sohanagashimani/playlist-converter/internal/metrics"
	"github.com/sohanagashimani/playlist-converter/internal/models"
	"github.com/sohanagashimani/playlist-converter/internal/services"
	"github.com/sohanagashimani/playlist-converter/internal/shared"
)

const (
	DefaultMaxConcurrentJobs = 3
	DefaultSearchDelay       = 200 * time.Millisecond
	DefaultMarkerTTL         = 2 * time.Hour
	DefaultListLimit         = 100

	cleanupTimeout = 5 * time.Second
)

// User-visible messages stored on job payloads.
const (
	msgEmptyPlaylist = "No tracks found in the playlist or playlist is empty"
	msgNoMatches     = "No tracks could be matched on YouTube Music"
	msgNoMatch       = "No matching track found on YouTube Music"
	msgCancelled     = "Conversion cancelled by user"
	msgInterrupted   = "Service restarted during conversion"
)

// JobStore persists conversion jobs.
//
// UpdateStatus merges payload into the stored result and reports false when the write
// was refused because the job already reached a terminal status.
type JobStore interface {
	Create(ctx context.Context, sourcePlaylistURL string) (*models.Job, error)
	Get(ctx context.Context, id string) (*models.Job, error)
	UpdateStatus(ctx context.Context, id string, status models.JobStatus, progress int, payload models.Payload) (bool, error)
	List(ctx context.Context, limit int) ([]*models.Job, error)
}

// ActiveJobIndex tracks the jobs occupying the concurrency budget.
//
// Count and IDs drop expired markers before answering.
type ActiveJobIndex interface {
	Add(ctx context.Context, id string, ttl time.Duration) error
	Remove(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	IDs(ctx context.Context) ([]string, error)
}

// Options tunes an [Orchestrator]. Zero values fall back to the defaults above,
// except SearchDelay, where zero disables pacing.
type Options struct {
	MaxConcurrentJobs int
	SearchDelay       time.Duration
	MarkerTTL         time.Duration
	ListLimit         int

	// SequentialAdd creates the playlist empty and adds matched tracks one by one.
	SequentialAdd bool

	// SharedIndex is set when other processes share the store and marker index.
	// Stage boundaries then re-read the job so cancellations written elsewhere are
	// seen, and recovery only touches jobs owned by this process.
	SharedIndex bool

	Logger   *log.Logger
	Metrics  *metrics.Metrics
	Progress chan<- ProgressUpdate
	Clock    func() time.Time
}

// OptionsFromConfig maps the [jobs] config section onto [Options].
func OptionsFromConfig(cfg shared.JobsConfig) Options {
	return Options{
		MaxConcurrentJobs: cfg.MaxConcurrent,
		SearchDelay:       cfg.SearchDelay(),
		MarkerTTL:         cfg.MarkerTTL(),
		ListLimit:         cfg.ListLimit,
		SequentialAdd:     cfg.SequentialAdd,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrentJobs < 1 {
		o.MaxConcurrentJobs = DefaultMaxConcurrentJobs
	}
	if o.SearchDelay < 0 {
		o.SearchDelay = 0
	}
	if o.MarkerTTL <= 0 {
		o.MarkerTTL = DefaultMarkerTTL
	}
	if o.ListLimit < 1 {
		o.ListLimit = DefaultListLimit
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard)
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// CapacityError rejects a submission while the concurrency budget is exhausted.
type CapacityError struct {
	Active int
	Max    int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("Server is busy processing %d conversions. Please try again in a few minutes.", e.Active)
}

func (e *CapacityError) Unwrap() error { return shared.ErrCapacity }

// CancelResult acknowledges a cancellation request.
type CancelResult struct {
	Acknowledged bool             `json:"acknowledged"`
	Message      string           `json:"message"`
	Status       models.JobStatus `json:"status"`
}

// SystemStatus summarizes the orchestrator's load.
type SystemStatus struct {
	ActiveJobs        int       `json:"activeJobs"`
	ActiveJobIDs      []string  `json:"activeJobIds"`
	MaxConcurrentJobs int       `json:"maxConcurrentJobs"`
	LoadPercentage    int       `json:"loadPercentage"`
	CanAcceptNewJobs  bool      `json:"canAcceptNewJobs"`
	SearchDelayMs     int64     `json:"apiCallDelay"`
	RunningTasks      int       `json:"runningTasks"`
	UptimeSeconds     int64     `json:"uptimeSeconds"`
	Timestamp         time.Time `json:"timestamp"`
}

// Orchestrator admits conversions and runs their pipelines in the background.
type Orchestrator struct {
	jobs    JobStore
	active  ActiveJobIndex
	source  services.PlaylistSource
	matcher services.TrackMatcher

	opts          Options
	logger        *log.Logger
	metrics       *metrics.Metrics
	cancellations *CancellationSet

	// admitMu serializes admission against itself and against Drain.
	admitMu  sync.Mutex
	draining atomic.Bool

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup

	startedAt time.Time
}

// NewOrchestrator creates an Orchestrator over the given store, marker index and services.
func NewOrchestrator(jobs JobStore, active ActiveJobIndex, source services.PlaylistSource, matcher services.TrackMatcher, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	return &Orchestrator{
		jobs:          jobs,
		active:        active,
		source:        source,
		matcher:       matcher,
		opts:          opts,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		cancellations: NewCancellationSet(),
		running:       make(map[string]context.CancelFunc),
		startedAt:     opts.Clock(),
	}
}

// Submit admits a conversion of sourcePlaylistURL and returns its job id.
//
// The pipeline runs in the background; Submit never waits for it. Rejections wrap
// [shared.ErrValidation], [shared.ErrShuttingDown], [shared.ErrCapacity] (as a
// [*CapacityError]), [shared.ErrUpstreamUnavailable] or [shared.ErrPersistence].
func (o *Orchestrator) Submit(ctx context.Context, sourcePlaylistURL string) (id string, err error) {
	defer func() { o.metrics.Submitted(admissionResult(err)) }()

	sourcePlaylistURL = strings.TrimSpace(sourcePlaylistURL)
	if sourcePlaylistURL == "" {
		return "", fmt.Errorf("%w: Spotify playlist URL is required", shared.ErrValidation)
	}

	if _, err := o.admissible(ctx); err != nil {
		return "", err
	}

	// The probe is a network call, so it runs outside admitMu and capacity is
	// checked again once the lock is held.
	if err := o.matcher.HealthCheck(ctx); err != nil {
		o.logger.Warn("rejecting conversion, upstream unhealthy", "service", o.matcher.Name(), "error", err)
		if errors.Is(err, shared.ErrUpstreamUnavailable) {
			return "", err
		}
		return "", fmt.Errorf("%w: YouTube Music service is not available. Please try again later: %v", shared.ErrUpstreamUnavailable, err)
	}

	o.admitMu.Lock()
	defer o.admitMu.Unlock()

	active, err := o.admissible(ctx)
	if err != nil {
		return "", err
	}

	job, err := o.jobs.Create(ctx, sourcePlaylistURL)
	if err != nil {
		if errors.Is(err, shared.ErrValidation) {
			return "", err
		}
		return "", fmt.Errorf("%w: Failed to create conversion job: %v", shared.ErrPersistence, err)
	}

	if err := o.active.Add(ctx, job.ID(), o.opts.MarkerTTL); err != nil {
		o.logger.Error("failed to register active conversion", "job", job.ID(), "error", err)
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		if _, uerr := o.jobs.UpdateStatus(wctx, job.ID(), models.StatusFailed, 0, models.Payload{"error": "Failed to register active conversion"}); uerr != nil {
			o.logger.Error("failed to mark unregistered conversion failed", "job", job.ID(), "error", uerr)
		}
		return "", fmt.Errorf("%w: registering active conversion: %v", shared.ErrPersistence, err)
	}

	o.launch(job)
	o.logger.Info("started conversion", "job", job.ID(), "url", sourcePlaylistURL, "active", active+1, "max", o.opts.MaxConcurrentJobs)
	return job.ID(), nil
}

// admissible returns the active count when another conversion may start.
func (o *Orchestrator) admissible(ctx context.Context) (int, error) {
	if o.draining.Load() {
		return 0, shared.ErrShuttingDown
	}
	active, err := o.active.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: counting active conversions: %v", shared.ErrPersistence, err)
	}
	if active >= o.opts.MaxConcurrentJobs {
		o.logger.Warn("rejecting conversion at capacity", "active", active, "max", o.opts.MaxConcurrentJobs)
		return 0, &CapacityError{Active: active, Max: o.opts.MaxConcurrentJobs}
	}
	return active, nil
}

func admissionResult(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, shared.ErrValidation):
		return "invalid"
	case errors.Is(err, shared.ErrCapacity):
		return "capacity"
	case errors.Is(err, shared.ErrUpstreamUnavailable):
		return "upstream_unavailable"
	case errors.Is(err, shared.ErrShuttingDown):
		return "shutting_down"
	default:
		return "persistence"
	}
}

// launch starts the pipeline goroutine. Callers hold admitMu.
func (o *Orchestrator) launch(job *models.Job) {
	ctx, cancel := context.WithCancel(context.Background())

	o.mu.Lock()
	o.running[job.ID()] = cancel
	n := len(o.running)
	o.mu.Unlock()
	o.metrics.SetRunning(n)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(ctx, job)
	}()
}

func (o *Orchestrator) run(ctx context.Context, job *models.Job) {
	start := time.Now()
	logger := shared.WithLogger(o.logger, "job", job.ID())
	defer o.finish(job.ID(), start, logger)

	err := o.pipeline(ctx, job.ID(), job.SourcePlaylistURL(), logger)
	o.settle(ctx, job.ID(), err, logger)
}

// settle records the terminal status for a pipeline that returned err.
func (o *Orchestrator) settle(ctx context.Context, id string, err error, logger *log.Logger) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	switch {
	case err == nil:
		return
	case errors.Is(err, errStopped):
		logger.Info("conversion stopped")
		return
	case o.draining.Load() && ctx.Err() != nil:
		logger.Info("conversion interrupted by shutdown")
		return
	case errors.Is(err, shared.ErrCancelled) || o.cancellations.Has(id):
		logger.Info("conversion cancelled")
		payload := models.Payload{"error": msgCancelled, "cancelledAt": o.timestamp()}
		if _, err := o.jobs.UpdateStatus(wctx, id, models.StatusCancelled, 0, payload); err != nil {
			logger.Error("failed to record cancellation", "error", err)
		}
	default:
		logger.Error("conversion failed", "error", err)
		if _, uerr := o.jobs.UpdateStatus(wctx, id, models.StatusFailed, 0, models.Payload{"error": err.Error()}); uerr != nil {
			logger.Error("failed to record failure", "error", uerr)
		}
	}
}

// finish releases everything a pipeline holds, whatever its outcome.
func (o *Orchestrator) finish(id string, start time.Time, logger *log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if err := o.active.Remove(ctx, id); err != nil {
		logger.Warn("failed to remove active marker", "error", err)
	}

	o.mu.Lock()
	if stop, ok := o.running[id]; ok {
		stop()
		delete(o.running, id)
	}
	o.cancellations.Remove(id)
	n := len(o.running)
	o.mu.Unlock()
	o.metrics.SetRunning(n)

	status := "unknown"
	if job, err := o.jobs.Get(ctx, id); err == nil {
		status = job.Status().String()
	}
	elapsed := time.Since(start)
	o.metrics.Finished(status, elapsed)
	logger.Info("conversion finished", "status", status, "elapsed", elapsed.Round(time.Millisecond))
}

// Cancel stops a conversion.
//
// The cancelled status is written whether or not the pipeline is running here. A job
// that already finished keeps its status and the result says so. When the store write
// fails the in-memory flag stays set, so a local pipeline still stops.
func (o *Orchestrator) Cancel(ctx context.Context, id string) (CancelResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return CancelResult{}, fmt.Errorf("%w: Conversion ID is required", shared.ErrValidation)
	}

	o.cancellations.Add(id)

	payload := models.Payload{"error": msgCancelled, "cancelledAt": o.timestamp()}
	applied, err := o.jobs.UpdateStatus(ctx, id, models.StatusCancelled, 0, payload)
	if err != nil {
		if errors.Is(err, shared.ErrJobNotFound) {
			o.releaseCancellation(id)
			return CancelResult{}, err
		}
		o.logger.Error("failed to cancel conversion", "job", id, "error", err)
		return CancelResult{}, fmt.Errorf("%w: Failed to cancel conversion: %v", shared.ErrPersistence, err)
	}

	if err := o.active.Remove(ctx, id); err != nil {
		o.logger.Warn("failed to remove active marker", "job", id, "error", err)
	}
	o.releaseCancellation(id)

	if !applied {
		status := models.StatusCompleted
		if job, err := o.jobs.Get(ctx, id); err == nil {
			status = job.Status()
		}
		return CancelResult{
			Acknowledged: true,
			Message:      fmt.Sprintf("Conversion already %s", status),
			Status:       status,
		}, nil
	}

	o.logger.Info("cancelled conversion", "job", id)
	return CancelResult{
		Acknowledged: true,
		Message:      "Conversion cancelled successfully",
		Status:       models.StatusCancelled,
	}, nil
}

// releaseCancellation drops the flag for jobs with no local pipeline left to observe it.
func (o *Orchestrator) releaseCancellation(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.running[id]; !ok {
		o.cancellations.Remove(id)
	}
}

// Status returns a job as stored.
func (o *Orchestrator) Status(ctx context.Context, id string) (*models.Job, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: Conversion ID is required", shared.ErrValidation)
	}
	return o.jobs.Get(ctx, id)
}

// List returns the most recent jobs, newest first.
func (o *Orchestrator) List(ctx context.Context) ([]*models.Job, error) {
	return o.jobs.List(ctx, o.opts.ListLimit)
}

// SystemStatus reports occupancy of the concurrency budget.
func (o *Orchestrator) SystemStatus(ctx context.Context) (*SystemStatus, error) {
	ids, err := o.active.IDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: listing active conversions: %v", shared.ErrPersistence, err)
	}
	if ids == nil {
		ids = []string{}
	}

	now := o.opts.Clock()
	active, limit := len(ids), o.opts.MaxConcurrentJobs
	return &SystemStatus{
		ActiveJobs:        active,
		ActiveJobIDs:      ids,
		MaxConcurrentJobs: limit,
		LoadPercentage:    int(math.Round(float64(active) / float64(limit) * 100)),
		CanAcceptNewJobs:  active < limit && !o.draining.Load(),
		SearchDelayMs:     o.opts.SearchDelay.Milliseconds(),
		RunningTasks:      o.Running(),
		UptimeSeconds:     int64(now.Sub(o.startedAt).Seconds()),
		Timestamp:         now.UTC(),
	}, nil
}

// UpstreamHealth checks the YouTube Music service.
func (o *Orchestrator) UpstreamHealth(ctx context.Context) error {
	return o.matcher.HealthCheck(ctx)
}

// Running returns the number of pipelines running in this process.
func (o *Orchestrator) Running() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.running)
}

func (o *Orchestrator) isRunning(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.running[id]
	return ok
}

func (o *Orchestrator) timestamp() string {
	return o.opts.Clock().UTC().Format(time.RFC3339)
}

// sendProgress sends a progress update through the channel without blocking.
func (o *Orchestrator) sendProgress(update ProgressUpdate) {
	if o.opts.Progress == nil {
		return
	}
	select {
	case o.opts.Progress <- update:
	default:
	}
}
