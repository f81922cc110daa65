package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	t.Run("records counters and gauges", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		m := New(reg)

		m.Submitted("accepted")
		m.Submitted("accepted")
		m.Submitted("capacity")
		m.Finished("completed", 2*time.Second)
		m.SetRunning(2)
		m.Searched("matched")
		m.Request("POST /api/playlist/convert", 202)

		if got := testutil.ToFloat64(m.SubmissionsTotal.WithLabelValues("accepted")); got != 2 {
			t.Errorf("expected 2 accepted submissions, got %v", got)
		}
		if got := testutil.ToFloat64(m.SubmissionsTotal.WithLabelValues("capacity")); got != 1 {
			t.Errorf("expected 1 capacity rejection, got %v", got)
		}
		if got := testutil.ToFloat64(m.JobsFinished.WithLabelValues("completed")); got != 1 {
			t.Errorf("expected 1 completed job, got %v", got)
		}
		if got := testutil.ToFloat64(m.ActiveJobs); got != 2 {
			t.Errorf("expected 2 running, got %v", got)
		}
		if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST /api/playlist/convert", "202")); got != 1 {
			t.Errorf("expected 1 request, got %v", got)
		}
	})

	t.Run("nil metrics are a no-op", func(t *testing.T) {
		var m *Metrics
		m.Submitted("accepted")
		m.Finished("failed", time.Second)
		m.SetRunning(1)
		m.Searched("error")
		m.Request("GET /", 200)
	})

	t.Run("handler exposes registered metrics", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		m := New(reg)
		m.Searched("unmatched")

		rec := httptest.NewRecorder()
		Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "playlist_converter_jobs_track_searches_total") {
			t.Errorf("expected search counter in output, got %q", rec.Body.String())
		}
	})
}
