package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./playlist-converter.db" {
			t.Errorf("expected database path ./playlist-converter.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 3001 {
			t.Errorf("expected server port 3001, got %d", config.Server.Port)
		}

		if config.Credentials.YouTube.ProxyURL != "http://127.0.0.1:8080" {
			t.Errorf("expected youtube proxy URL http://127.0.0.1:8080, got %s", config.Credentials.YouTube.ProxyURL)
		}

		if config.Jobs.MaxConcurrent != 3 {
			t.Errorf("expected max concurrent jobs 3, got %d", config.Jobs.MaxConcurrent)
		}

		if got := config.Jobs.SearchDelay(); got != 200*time.Millisecond {
			t.Errorf("expected search delay 200ms, got %v", got)
		}

		if got := config.Jobs.MarkerTTL(); got != 2*time.Hour {
			t.Errorf("expected marker TTL 2h, got %v", got)
		}

		if got := config.Jobs.ShutdownGrace(); got != 10*time.Second {
			t.Errorf("expected shutdown grace 10s, got %v", got)
		}

		if config.Jobs.ListLimit != 100 {
			t.Errorf("expected list limit 100, got %d", config.Jobs.ListLimit)
		}

		if err := config.Validate(); err != nil {
			t.Errorf("default config should validate: %v", err)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		defaultConfig := DefaultConfig()
		if config.Database.Path != defaultConfig.Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[database]
path = "/custom/path.db"

[server]
host = "127.0.0.1"
port = 8080

[credentials.spotify]
client_id = "test_client_id"
client_secret = "test_secret"

[jobs]
max_concurrent = 5
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Database.Path != "/custom/path.db" {
			t.Errorf("expected database path /custom/path.db, got %s", config.Database.Path)
		}

		if config.Server.Addr() != "127.0.0.1:8080" {
			t.Errorf("expected addr 127.0.0.1:8080, got %s", config.Server.Addr())
		}

		if config.Credentials.Spotify.ClientID != "test_client_id" {
			t.Errorf("expected spotify client_id test_client_id, got %s", config.Credentials.Spotify.ClientID)
		}

		if config.Jobs.MaxConcurrent != 5 {
			t.Errorf("expected max concurrent 5, got %d", config.Jobs.MaxConcurrent)
		}

		if config.Jobs.SearchDelayMs != 200 {
			t.Errorf("unset keys should keep defaults, got search delay %d", config.Jobs.SearchDelayMs)
		}
	})

	t.Run("LoadConfig Missing", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
		if !errors.Is(err, ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
	})
}

func TestApplyEnv(t *testing.T) {
	tc := []struct {
		name    string
		env     map[string]string
		check   func(t *testing.T, c *Config)
		wantErr bool
	}{
		{
			name: "credentials and service url",
			env: map[string]string{
				"SPOTIFY_CLIENT_ID":     "env-id",
				"SPOTIFY_CLIENT_SECRET": "env-secret",
				"YTMUSIC_SERVICE_URL":   "http://ytmusic:8000",
			},
			check: func(t *testing.T, c *Config) {
				if c.Credentials.Spotify.ClientID != "env-id" || c.Credentials.Spotify.ClientSecret != "env-secret" {
					t.Errorf("spotify credentials not applied: %+v", c.Credentials.Spotify)
				}
				if c.Credentials.YouTube.ProxyURL != "http://ytmusic:8000" {
					t.Errorf("expected proxy url override, got %s", c.Credentials.YouTube.ProxyURL)
				}
			},
		},
		{
			name: "numeric overrides",
			env:  map[string]string{"PORT": "9000", "MAX_CONCURRENT_JOBS": "7", "API_CALL_DELAY_MS": "0"},
			check: func(t *testing.T, c *Config) {
				if c.Server.Port != 9000 {
					t.Errorf("expected port 9000, got %d", c.Server.Port)
				}
				if c.Jobs.MaxConcurrent != 7 {
					t.Errorf("expected max concurrent 7, got %d", c.Jobs.MaxConcurrent)
				}
				if c.Jobs.SearchDelayMs != 0 {
					t.Errorf("expected search delay 0, got %d", c.Jobs.SearchDelayMs)
				}
			},
		},
		{
			name: "redis address enables redis",
			env:  map[string]string{"REDIS_ADDRESS": "redis:6379"},
			check: func(t *testing.T, c *Config) {
				if !c.Redis.Enabled || c.Redis.Address != "redis:6379" {
					t.Errorf("expected redis enabled at redis:6379, got %+v", c.Redis)
				}
			},
		},
		{
			name:    "invalid number",
			env:     map[string]string{"PORT": "eighty"},
			wantErr: true,
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			err := c.ApplyEnv(func(k string) string { return tt.env[k] })
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Fatalf("expected ErrInvalidConfig, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, c)
		})
	}
}

func TestValidate(t *testing.T) {
	tc := []struct {
		name   string
		mutate func(c *Config)
		want   error
	}{
		{name: "zero capacity", mutate: func(c *Config) { c.Jobs.MaxConcurrent = 0 }, want: ErrInvalidConfig},
		{name: "negative delay", mutate: func(c *Config) { c.Jobs.SearchDelayMs = -1 }, want: ErrInvalidConfig},
		{name: "no marker ttl", mutate: func(c *Config) { c.Jobs.MarkerTTLMinutes = 0 }, want: ErrInvalidConfig},
		{name: "no service url", mutate: func(c *Config) { c.Credentials.YouTube.ProxyURL = "" }, want: ErrMissingConfig},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			if err := c.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}

	t.Run("credentials", func(t *testing.T) {
		c := DefaultConfig()
		c.Credentials.Spotify.ClientSecret = ""
		if err := c.ValidateCredentials(); !errors.Is(err, ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("PLAYLIST_CONVERTER_TEST_VAR=from-dotenv\n"), 0644); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	t.Setenv("PLAYLIST_CONVERTER_TEST_VAR", "")
	os.Unsetenv("PLAYLIST_CONVERTER_TEST_VAR")

	if err := LoadDotEnv(envPath, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}

	if got := os.Getenv("PLAYLIST_CONVERTER_TEST_VAR"); got != "from-dotenv" {
		t.Errorf("expected from-dotenv, got %q", got)
	}
}
