package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sohanagashimani/playlist-converter/internal/metrics"
	"github.com/sohanagashimani/playlist-converter/internal/models"
	"github.com/sohanagashimani/playlist-converter/internal/shared"
	"github.com/sohanagashimani/playlist-converter/internal/tasks"
)

type mockConversions struct {
	submitID   string
	submitErr  error
	submitted  []string
	job        *models.Job
	statusErr  error
	cancel     tasks.CancelResult
	cancelErr  error
	jobs       []*models.Job
	listErr    error
	system     *tasks.SystemStatus
	healthErr  error
	panicOnGet bool
}

func (m *mockConversions) Submit(ctx context.Context, url string) (string, error) {
	m.submitted = append(m.submitted, url)
	return m.submitID, m.submitErr
}

func (m *mockConversions) Status(ctx context.Context, id string) (*models.Job, error) {
	if m.panicOnGet {
		panic("boom")
	}
	return m.job, m.statusErr
}

func (m *mockConversions) Cancel(ctx context.Context, id string) (tasks.CancelResult, error) {
	return m.cancel, m.cancelErr
}

func (m *mockConversions) List(ctx context.Context) ([]*models.Job, error) {
	return m.jobs, m.listErr
}

func (m *mockConversions) SystemStatus(ctx context.Context) (*tasks.SystemStatus, error) {
	return m.system, nil
}

func (m *mockConversions) UpstreamHealth(ctx context.Context) error { return m.healthErr }

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStartConversion(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantError  string
	}{
		{name: "accepted", body: `{"spotifyPlaylistUrl":"https://open.spotify.com/playlist/abc"}`, wantStatus: http.StatusAccepted},
		{name: "invalid JSON", body: `{`, wantStatus: http.StatusBadRequest, wantError: "invalid JSON"},
		{
			name:       "validation",
			body:       `{}`,
			err:        fmt.Errorf("%w: Spotify playlist URL is required", shared.ErrValidation),
			wantStatus: http.StatusBadRequest,
			wantError:  "Spotify playlist URL is required",
		},
		{
			name:       "capacity",
			body:       `{"spotifyPlaylistUrl":"x"}`,
			err:        &tasks.CapacityError{Active: 3, Max: 3},
			wantStatus: http.StatusServiceUnavailable,
			wantError:  "busy processing 3 conversions",
		},
		{
			name:       "upstream unavailable",
			body:       `{"spotifyPlaylistUrl":"x"}`,
			err:        fmt.Errorf("%w: down", shared.ErrUpstreamUnavailable),
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "persistence",
			body:       `{"spotifyPlaylistUrl":"x"}`,
			err:        fmt.Errorf("%w: disk full", shared.ErrPersistence),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := &mockConversions{submitID: "job-1", submitErr: tt.err}
			api := NewAPI(conv, APIOptions{})

			rec := do(api, http.MethodPost, "/api/playlist/start-conversion", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}

			resp := decode(t, rec)
			if tt.wantStatus == http.StatusAccepted {
				if !resp.Success {
					t.Error("expected success")
				}
				data, _ := resp.Data.(map[string]any)
				if data["conversionId"] != "job-1" {
					t.Errorf("expected conversionId job-1, got %v", resp.Data)
				}
				return
			}
			if resp.Success {
				t.Error("expected failure envelope")
			}
			if !strings.Contains(resp.Error, tt.wantError) {
				t.Errorf("expected error containing %q, got %q", tt.wantError, resp.Error)
			}
		})
	}

	t.Run("rate limited per client", func(t *testing.T) {
		conv := &mockConversions{submitID: "job-1"}
		api := NewAPI(conv, APIOptions{RateLimit: 2, RateBurst: 2})

		codes := make([]int, 0, 3)
		for range 3 {
			req := httptest.NewRequest(http.MethodPost, "/api/playlist/start-conversion", strings.NewReader(`{"spotifyPlaylistUrl":"x"}`))
			req.RemoteAddr = "10.0.0.1:5000"
			rec := httptest.NewRecorder()
			api.ServeHTTP(rec, req)
			codes = append(codes, rec.Code)
		}
		if codes[0] != http.StatusAccepted || codes[1] != http.StatusAccepted || codes[2] != http.StatusTooManyRequests {
			t.Errorf("expected 202, 202, 429, got %v", codes)
		}
		if len(conv.submitted) != 2 {
			t.Errorf("expected 2 submissions to reach the orchestrator, got %d", len(conv.submitted))
		}

		req := httptest.NewRequest(http.MethodPost, "/api/playlist/start-conversion", strings.NewReader(`{"spotifyPlaylistUrl":"x"}`))
		req.RemoteAddr = "10.0.0.2:5000"
		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, req)
		if rec.Code != http.StatusAccepted {
			t.Errorf("expected another client to be admitted, got %d", rec.Code)
		}
	})

	t.Run("rotating forwarded header does not reset the limit", func(t *testing.T) {
		conv := &mockConversions{submitID: "job-1"}
		api := NewAPI(conv, APIOptions{RateLimit: 1, RateBurst: 1})

		codes := make([]int, 0, 3)
		for i := range 3 {
			req := httptest.NewRequest(http.MethodPost, "/api/playlist/start-conversion", strings.NewReader(`{"spotifyPlaylistUrl":"x"}`))
			req.RemoteAddr = "10.0.0.1:5000"
			req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i+1))
			rec := httptest.NewRecorder()
			api.ServeHTTP(rec, req)
			codes = append(codes, rec.Code)
		}
		if codes[0] != http.StatusAccepted || codes[1] != http.StatusTooManyRequests || codes[2] != http.StatusTooManyRequests {
			t.Errorf("expected 202, 429, 429, got %v", codes)
		}
	})

	t.Run("trusted proxy keys on forwarded address", func(t *testing.T) {
		conv := &mockConversions{submitID: "job-1"}
		api := NewAPI(conv, APIOptions{RateLimit: 1, RateBurst: 1, TrustProxy: true})

		for i, want := range []int{http.StatusAccepted, http.StatusAccepted, http.StatusTooManyRequests} {
			req := httptest.NewRequest(http.MethodPost, "/api/playlist/start-conversion", strings.NewReader(`{"spotifyPlaylistUrl":"x"}`))
			req.RemoteAddr = "10.0.0.1:5000"
			fwd := "198.51.100.1"
			if i == 1 {
				fwd = "198.51.100.2"
			}
			req.Header.Set("X-Forwarded-For", fwd)
			rec := httptest.NewRecorder()
			api.ServeHTTP(rec, req)
			if rec.Code != want {
				t.Errorf("request %d: expected %d, got %d", i, want, rec.Code)
			}
		}
	})
}

func TestConversionStatus(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	job := models.RestoreJob("job-1", "https://open.spotify.com/playlist/abc", models.StatusConvertingTracks, 41,
		models.Payload{"currentTrack": "One by A"}, now, now)

	t.Run("found", func(t *testing.T) {
		api := NewAPI(&mockConversions{job: job}, APIOptions{})

		rec := do(api, http.MethodGet, "/api/playlist/conversion-status/job-1", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		resp := decode(t, rec)
		data := resp.Data.(map[string]any)
		if data["status"] != "converting-tracks" || data["progress"] != float64(41) {
			t.Errorf("unexpected job data %v", data)
		}
		if resp.Message != "Conversion status: converting-tracks" {
			t.Errorf("unexpected message %q", resp.Message)
		}
	})

	t.Run("not found", func(t *testing.T) {
		api := NewAPI(&mockConversions{statusErr: fmt.Errorf("%w: job-2", shared.ErrJobNotFound)}, APIOptions{})

		rec := do(api, http.MethodGet, "/api/playlist/conversion-status/job-2", "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
		if resp := decode(t, rec); resp.Error != "Conversion not found or expired" {
			t.Errorf("unexpected error %q", resp.Error)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		api := NewAPI(&mockConversions{job: job}, APIOptions{})

		rec := do(api, http.MethodDelete, "/api/playlist/conversion-status/job-1", "")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
	})

	t.Run("panic is recovered", func(t *testing.T) {
		api := NewAPI(&mockConversions{panicOnGet: true}, APIOptions{})

		rec := do(api, http.MethodGet, "/api/playlist/conversion-status/job-1", "")
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
	})
}

func TestCancelConversion(t *testing.T) {
	t.Run("acknowledged", func(t *testing.T) {
		conv := &mockConversions{cancel: tasks.CancelResult{
			Acknowledged: true,
			Message:      "Conversion cancelled successfully",
			Status:       models.StatusCancelled,
		}}
		api := NewAPI(conv, APIOptions{})

		rec := do(api, http.MethodPost, "/api/playlist/cancel-conversion/job-1", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		resp := decode(t, rec)
		data := resp.Data.(map[string]any)
		if data["conversionId"] != "job-1" || data["acknowledged"] != true || data["status"] != "cancelled" {
			t.Errorf("unexpected data %v", data)
		}
		if resp.Message != "Conversion cancelled successfully" {
			t.Errorf("unexpected message %q", resp.Message)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		api := NewAPI(&mockConversions{cancelErr: fmt.Errorf("%w: locked", shared.ErrPersistence)}, APIOptions{})

		rec := do(api, http.MethodPost, "/api/playlist/cancel-conversion/job-1", "")
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
	})
}

func TestReadRoutes(t *testing.T) {
	t.Run("conversions", func(t *testing.T) {
		now := time.Now().UTC()
		conv := &mockConversions{jobs: []*models.Job{
			models.NewJob("b", "https://open.spotify.com/playlist/b", now),
			models.NewJob("a", "https://open.spotify.com/playlist/a", now),
		}}
		api := NewAPI(conv, APIOptions{})

		rec := do(api, http.MethodGet, "/api/playlist/conversions", "")
		resp := decode(t, rec)
		if items, _ := resp.Data.([]any); len(items) != 2 {
			t.Errorf("expected 2 conversions, got %v", resp.Data)
		}
		if resp.Message != "Found 2 conversions" {
			t.Errorf("unexpected message %q", resp.Message)
		}
	})

	t.Run("empty conversions list", func(t *testing.T) {
		api := NewAPI(&mockConversions{}, APIOptions{})

		rec := do(api, http.MethodGet, "/api/playlist/conversions", "")
		if !strings.Contains(rec.Body.String(), `"data":[]`) {
			t.Errorf("expected empty list, got %s", rec.Body.String())
		}
	})

	t.Run("system status", func(t *testing.T) {
		conv := &mockConversions{system: &tasks.SystemStatus{ActiveJobs: 1, MaxConcurrentJobs: 3, LoadPercentage: 33, CanAcceptNewJobs: true}}
		api := NewAPI(conv, APIOptions{})

		rec := do(api, http.MethodGet, "/api/playlist/system-status", "")
		data := decode(t, rec).Data.(map[string]any)
		if data["loadPercentage"] != float64(33) || data["canAcceptNewJobs"] != true {
			t.Errorf("unexpected data %v", data)
		}
	})

	t.Run("playlist health reports upstream state", func(t *testing.T) {
		api := NewAPI(&mockConversions{healthErr: errors.New("down")}, APIOptions{})

		rec := do(api, http.MethodGet, "/api/playlist/health", "")
		data := decode(t, rec).Data.(map[string]any)
		if data["backend"] != true || data["ytmusicService"] != false {
			t.Errorf("unexpected health %v", data)
		}
	})

	t.Run("liveness", func(t *testing.T) {
		api := NewAPI(&mockConversions{}, APIOptions{})

		rec := do(api, http.MethodGet, "/api/health", "")
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"OK"`) {
			t.Errorf("unexpected liveness response %d %s", rec.Code, rec.Body.String())
		}
	})
}

func TestMetricsAndLogging(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	var buf bytes.Buffer
	logger := log.New(&buf)

	api := NewAPI(&mockConversions{}, APIOptions{Logger: logger, Metrics: m, Gatherer: reg})

	do(api, http.MethodGet, "/api/health", "")

	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET /api/health", "200")); got != 1 {
		t.Errorf("expected 1 counted request, got %v", got)
	}
	if !strings.Contains(buf.String(), "/api/health") {
		t.Errorf("expected request to be logged, got %q", buf.String())
	}

	rec := do(api, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "playlist_converter_http_requests_total") {
		t.Errorf("expected metrics exposition, got %d", rec.Code)
	}
}

func TestRouter(t *testing.T) {
	t.Run("middleware order", func(t *testing.T) {
		var order []string
		mw := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		r := NewBasicRouter()
		r.Use(mw("first"), mw("second"))
		r.Handle(http.MethodGet, "/ping", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "handler")
		}))

		do(r, http.MethodGet, "/ping", "")
		if strings.Join(order, ",") != "first,second,handler" {
			t.Errorf("unexpected order %v", order)
		}
	})

	t.Run("routes", func(t *testing.T) {
		api := NewAPI(&mockConversions{}, APIOptions{})
		routes := api.Routes()

		if len(routes) != 7 {
			t.Fatalf("expected 7 routes without a gatherer, got %v", routes)
		}
		if routes[0] != "POST /api/playlist/start-conversion" || routes[len(routes)-1] != "GET /api/health" {
			t.Errorf("unexpected registration order %v", routes)
		}

		routes[0] = "mutated"
		if api.Routes()[0] == "mutated" {
			t.Error("expected Routes to return a copy")
		}
	})

	t.Run("client IP", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		if got := ClientIP(req, true); got != "192.0.2.1" {
			t.Errorf("expected remote host, got %q", got)
		}
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		if got := ClientIP(req, false); got != "192.0.2.1" {
			t.Errorf("expected forwarded header to be ignored, got %q", got)
		}
		if got := ClientIP(req, true); got != "203.0.113.9" {
			t.Errorf("expected forwarded address, got %q", got)
		}
	})

	t.Run("status mapping", func(t *testing.T) {
		tests := []struct {
			err  error
			want int
		}{
			{shared.ErrValidation, http.StatusBadRequest},
			{shared.ErrJobNotFound, http.StatusNotFound},
			{&tasks.CapacityError{}, http.StatusServiceUnavailable},
			{shared.ErrUpstreamUnavailable, http.StatusServiceUnavailable},
			{shared.ErrShuttingDown, http.StatusServiceUnavailable},
			{shared.ErrPersistence, http.StatusInternalServerError},
			{errors.New("other"), http.StatusInternalServerError},
		}
		for _, tt := range tests {
			if got := StatusFor(tt.err); got != tt.want {
				t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		}
	})
}

func TestServe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	srv := NewHTTPServer(ln.Addr().String(), NewAPI(&mockConversions{}, APIOptions{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, srv, ln, time.Second, log.New(&bytes.Buffer{})) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/health")
	if err != nil {
		t.Fatalf("expected server to answer, got %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
