package main

import (
	"context"
	"errors"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/sohanagashimani/playlist-converter/internal/services"
	"github.com/sohanagashimani/playlist-converter/internal/shared"
)

const defaultConfigPath = "config.toml"

func main() {
	logger := shared.NewLogger(nil)

	if err := shared.LoadDotEnv(); err != nil {
		logger.Warn("failed to load .env", "error", err)
	}

	config := shared.DefaultConfig()
	if _, err := os.Stat(defaultConfigPath); err == nil {
		if loadedConfig, err := shared.LoadConfig(defaultConfigPath); err == nil {
			config = loadedConfig
		} else {
			logger.Warn("failed to load config, using defaults", "error", err)
		}
	}

	if err := config.ApplyEnv(os.Getenv); err != nil {
		logger.Fatalf("invalid environment: %v", err)
	}
	if err := shared.SetLogLevel(logger, config.Log.Level); err != nil {
		logger.Warn("unknown log level, keeping info", "level", config.Log.Level)
	}

	var spotifyService services.PlaylistSource
	if config.ValidateCredentials() == nil {
		if svc, err := services.NewSpotifyService(map[string]string{
			"client_id":     config.Credentials.Spotify.ClientID,
			"client_secret": config.Credentials.Spotify.ClientSecret,
		}); err == nil {
			spotifyService = svc
		}
	}

	runner := NewRunner(RunnerOpts{
		Config:     config,
		ConfigPath: defaultConfigPath,
		Source:     spotifyService,
		Matcher:    services.NewYouTubeService(config.Credentials.YouTube.ProxyURL),
		API:        services.NewAPIService(localServerURL(config.Server), nil),
		Logger:     logger,
	})

	app := &cli.Command{
		Name:     "playlist-converter",
		Usage:    "Convert Spotify playlists to YouTube Music",
		Version:  "1.0.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		logger.Fatalf("application error: %v", err)
	}
}
