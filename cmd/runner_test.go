package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/urfave/cli/v3"

	"github.com/sohanagashimani/playlist-converter/internal/models"
	"github.com/sohanagashimani/playlist-converter/internal/services"
	"github.com/sohanagashimani/playlist-converter/internal/shared"
	tu "github.com/sohanagashimani/playlist-converter/internal/testing"
)

// run executes args against a fresh app built from r.
func run(r *Runner, args ...string) error {
	app := &cli.Command{Name: "playlist-converter", Commands: r.register()}
	return app.Run(context.Background(), append([]string{"playlist-converter"}, args...))
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(io.Discard)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}
			source := &tu.FakeSource{}
			matcher := &tu.FakeMatcher{}
			api := services.NewAPIService("http://example.test", httpClient)

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/test/path/config.toml",
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
				Source:     source,
				Matcher:    matcher,
				API:        api,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.source != source {
				t.Error("expected source to be set")
			}
			if runner.matcher != matcher {
				t.Error("expected matcher to be set")
			}
			if runner.api != api {
				t.Error("expected api to be set")
			}
		})

		t.Run("with nil options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
			if runner.api == nil {
				t.Error("expected default API client")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "hello world" {
				t.Errorf("expected 'hello world', got %q", output.String())
			}
		})

		t.Run("writePlainln surrounds with newlines", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			runner.writePlainln("done")
			if output.String() != "\ndone\n" {
				t.Errorf("unexpected output %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		want := []string{"setup", "serve", "convert", "jobs", "system", "api"}
		if len(commands) != len(want) {
			t.Fatalf("expected %d commands, got %d", len(want), len(commands))
		}
		for i, cmd := range commands {
			if cmd == nil || cmd.Name != want[i] {
				t.Errorf("command at index %d: expected %s, got %+v", i, want[i], cmd)
			}
		}
	})

	t.Run("client honors server flag", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})
		probe := func(args ...string) *services.APIService {
			var got *services.APIService
			cmd := &cli.Command{
				Name:  "probe",
				Flags: []cli.Flag{serverFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					got = runner.client(cmd)
					return nil
				},
			}
			if err := cmd.Run(context.Background(), append([]string{"probe"}, args...)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			return got
		}

		if probe() != runner.api {
			t.Error("expected default API client without --server")
		}
		if probe("--server", "http://other:9000") == runner.api {
			t.Error("expected a new API client for --server")
		}
	})
}

func TestStyles(t *testing.T) {
	t.Run("statusLabel keeps status text", func(t *testing.T) {
		for _, s := range []models.JobStatus{
			models.StatusStarted, models.StatusConvertingTracks, models.StatusCompleted,
			models.StatusFailed, models.StatusCancelled, models.StatusInterrupted,
		} {
			if !strings.Contains(statusLabel(s), s.String()) {
				t.Errorf("label for %s lost its text: %q", s, statusLabel(s))
			}
		}
	})

	t.Run("progressBar", func(t *testing.T) {
		tests := []struct {
			in     int
			filled int
			suffix string
		}{
			{0, 0, "  0%"},
			{50, 10, " 50%"},
			{100, 20, "100%"},
			{150, 20, "100%"},
			{-5, 0, "  0%"},
		}
		for _, tt := range tests {
			got := progressBar(tt.in)
			if strings.Count(got, "█") != tt.filled {
				t.Errorf("progressBar(%d) filled %d cells, want %d", tt.in, strings.Count(got, "█"), tt.filled)
			}
			if !strings.HasSuffix(got, tt.suffix) {
				t.Errorf("progressBar(%d) = %q, want suffix %q", tt.in, got, tt.suffix)
			}
		}
	})
}
