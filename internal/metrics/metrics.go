// Package metrics exposes Prometheus instrumentation for conversions and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Namespace is the namespace for all converter metrics.
	Namespace = "playlist_converter"

	subsystemJobs = "jobs"
	subsystemHTTP = "http"
)

// Metrics holds all Prometheus metrics for the converter.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	SubmissionsTotal *prometheus.CounterVec
	JobsFinished     *prometheus.CounterVec
	JobDuration      *prometheus.HistogramVec
	ActiveJobs       prometheus.Gauge
	TrackSearches    *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
}

// New creates and registers all converter metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		SubmissionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemJobs,
			Name:      "submissions_total",
			Help:      "Conversion submissions by admission result",
		}, []string{"result"}),
		JobsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemJobs,
			Name:      "finished_total",
			Help:      "Conversions that reached a terminal status",
		}, []string{"status"}),
		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: subsystemJobs,
			Name:      "duration_seconds",
			Help:      "Wall time of conversion pipelines",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"status"}),
		ActiveJobs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: subsystemJobs,
			Name:      "running",
			Help:      "Conversion pipelines running in this process",
		}),
		TrackSearches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemJobs,
			Name:      "track_searches_total",
			Help:      "Track searches by outcome",
		}, []string{"outcome"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemHTTP,
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "code"}),
	}
}

// Submitted counts one admission decision.
func (m *Metrics) Submitted(result string) {
	if m == nil {
		return
	}
	m.SubmissionsTotal.WithLabelValues(result).Inc()
}

// Finished counts a pipeline that ended in status after d.
func (m *Metrics) Finished(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.JobsFinished.WithLabelValues(status).Inc()
	m.JobDuration.WithLabelValues(status).Observe(d.Seconds())
}

// SetRunning records the number of pipelines running in this process.
func (m *Metrics) SetRunning(n int) {
	if m == nil {
		return
	}
	m.ActiveJobs.Set(float64(n))
}

// Searched counts one track search.
func (m *Metrics) Searched(outcome string) {
	if m == nil {
		return
	}
	m.TrackSearches.WithLabelValues(outcome).Inc()
}

// Request counts one served HTTP request.
func (m *Metrics) Request(route string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
