package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Jobs        JobsConfig        `toml:"jobs"`
	Redis       RedisConfig       `toml:"redis"`
	Log         LogConfig         `toml:"log"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
	YouTube YouTubeConfig `toml:"youtube"`
}

// SpotifyConfig contains Spotify client credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// YouTubeConfig points at the YouTube Music matching microservice.
type YouTubeConfig struct {
	ProxyURL string `toml:"proxy_url"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
//
// RateLimit is the number of conversion submissions allowed per client per minute.
// Clients are keyed by remote address unless TrustProxy is set, in which case the
// first X-Forwarded-For entry wins.
type ServerConfig struct {
	Host       string `toml:"host"`
	Port       int    `toml:"port"`
	RateLimit  int    `toml:"rate_limit"`
	RateBurst  int    `toml:"rate_burst"`
	TrustProxy bool   `toml:"trust_proxy"`
}

// JobsConfig tunes the conversion orchestrator.
type JobsConfig struct {
	MaxConcurrent        int  `toml:"max_concurrent"`
	SearchDelayMs        int  `toml:"search_delay_ms"`
	MarkerTTLMinutes     int  `toml:"marker_ttl_minutes"`
	ShutdownGraceSeconds int  `toml:"shutdown_grace_seconds"`
	ListLimit            int  `toml:"list_limit"`
	SequentialAdd        bool `toml:"sequential_add"`
}

// RedisConfig enables the shared active job index.
type RedisConfig struct {
	Enabled  bool   `toml:"enabled"`
	Address  string `toml:"address"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// SearchDelay returns the pause between consecutive track searches.
func (c JobsConfig) SearchDelay() time.Duration {
	return time.Duration(c.SearchDelayMs) * time.Millisecond
}

// MarkerTTL returns how long an active job marker lives before it is swept.
func (c JobsConfig) MarkerTTL() time.Duration {
	return time.Duration(c.MarkerTTLMinutes) * time.Minute
}

// ShutdownGrace returns how long shutdown waits for running conversions.
func (c JobsConfig) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSeconds) * time.Second
}

// Addr returns the host:port the HTTP server listens on.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingConfig, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadDotEnv loads variables from the given .env files into the process environment.
// Missing files are ignored; variables already set are not overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides config values with environment variables when they are set.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}

	strs := map[string]*string{
		"SPOTIFY_CLIENT_ID":     &c.Credentials.Spotify.ClientID,
		"SPOTIFY_CLIENT_SECRET": &c.Credentials.Spotify.ClientSecret,
		"YTMUSIC_SERVICE_URL":   &c.Credentials.YouTube.ProxyURL,
		"DATABASE_PATH":         &c.Database.Path,
		"REDIS_ADDRESS":         &c.Redis.Address,
		"REDIS_PASSWORD":        &c.Redis.Password,
		"LOG_LEVEL":             &c.Log.Level,
	}
	for key, dst := range strs {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"PORT":                &c.Server.Port,
		"MAX_CONCURRENT_JOBS": &c.Jobs.MaxConcurrent,
		"API_CALL_DELAY_MS":   &c.Jobs.SearchDelayMs,
	}
	for key, dst := range ints {
		v := getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, key, v)
		}
		*dst = n
	}

	if getenv("REDIS_ADDRESS") != "" {
		c.Redis.Enabled = true
	}
	return nil
}

// Validate checks that the values needed to run conversions are usable.
func (c *Config) Validate() error {
	switch {
	case c.Jobs.MaxConcurrent < 1:
		return fmt.Errorf("%w: jobs.max_concurrent must be at least 1", ErrInvalidConfig)
	case c.Jobs.SearchDelayMs < 0:
		return fmt.Errorf("%w: jobs.search_delay_ms cannot be negative", ErrInvalidConfig)
	case c.Jobs.MarkerTTLMinutes < 1:
		return fmt.Errorf("%w: jobs.marker_ttl_minutes must be at least 1", ErrInvalidConfig)
	case c.Jobs.ListLimit < 1:
		return fmt.Errorf("%w: jobs.list_limit must be at least 1", ErrInvalidConfig)
	case c.Credentials.YouTube.ProxyURL == "":
		return fmt.Errorf("%w: credentials.youtube.proxy_url", ErrMissingConfig)
	}
	return nil
}

// ValidateCredentials reports whether Spotify client credentials are present.
func (c *Config) ValidateCredentials() error {
	s := c.Credentials.Spotify
	if s.ClientID == "" || s.ClientSecret == "" {
		return fmt.Errorf("%w: spotify client_id and client_secret", ErrMissingCredentials)
	}
	return nil
}
