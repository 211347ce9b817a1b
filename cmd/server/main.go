// Package main provides the API server entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/hmdyt/melodio/internal/api/rest"
	"github.com/hmdyt/melodio/internal/app/resolver"
	"github.com/hmdyt/melodio/internal/infra/catalog"
	"github.com/hmdyt/melodio/internal/infra/config"
	"github.com/hmdyt/melodio/internal/infra/logger"
	"github.com/hmdyt/melodio/internal/infra/lyrics"
)

var (
	app        = kingpin.New("melodio-server", "melodio streaming API server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	// Initialize logger
	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	// Load config
	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Create catalog client
	cat, err := catalog.NewFromConfig(cfg.Catalog)
	if err != nil {
		return fmt.Errorf("failed to create catalog client: %w", err)
	}

	// Create resolution cache
	store := resolver.New(cat, resolver.Options{
		TTL:        time.Duration(cfg.Resolver.TTLMinutes) * time.Minute,
		RelatedTTL: time.Duration(cfg.Resolver.RelatedTTLMinutes) * time.Minute,
	})

	// Create lyrics client unless disabled
	var lyricsClient *lyrics.Client
	if cfg.Lyrics.Disabled {
		zlog.Info().Msg("Lyrics lookup disabled")
	} else {
		lyricsClient = lyrics.New(lyrics.Config{BaseURL: cfg.Lyrics.BaseURL})
	}

	server := rest.New(rest.Config{
		Addr:            cfg.Server.Addr,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		ReadTimeout:     time.Duration(cfg.Server.ReadTimeoutMs) * time.Millisecond,
		WriteTimeout:    time.Duration(cfg.Server.WriteTimeoutMs) * time.Millisecond,
		SearchPrefetch:  cfg.Resolver.SearchPrefetch,
		RelatedPrefetch: cfg.Resolver.RelatedPrefetch,
	}, store, cat, lyricsClient)

	if err := server.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
