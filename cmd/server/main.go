// Command server boots the nearby-backend HTTP API: it loads configuration,
// opens the SQLite store, wires the in-process change bus and the optional
// gazetteer, mounts the routes, and runs the stale-presence sweeper until
// the process receives SIGINT or SIGTERM.
//
// @title           go-nearby-backend API
// @version         1.0
// @description     Location-aware presence and proximity API: presence lifecycle, nearby queries, and anchored help-request threads.
// @BasePath        /api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "github.com/tbourn/go-nearby-backend/docs"
	"github.com/tbourn/go-nearby-backend/internal/bus"
	"github.com/tbourn/go-nearby-backend/internal/config"
	"github.com/tbourn/go-nearby-backend/internal/geocode"
	httpapi "github.com/tbourn/go-nearby-backend/internal/http"
	"github.com/tbourn/go-nearby-backend/internal/observability"
	"github.com/tbourn/go-nearby-backend/internal/repo"
	"github.com/tbourn/go-nearby-backend/internal/services"
	"github.com/tbourn/go-nearby-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is a dev convenience; absence is not an error.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	logger := log.With().Str("service", "nearby-backend").Str("version", version).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		logger.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		logger.Fatal().Err(err).Msg("migrate failed")
	}

	// The gazetteer only decorates responses with place labels, so a
	// missing or unparsable file downgrades to coordinates-only output.
	var places geocode.Resolver
	if cfg.PlacesPath != "" {
		g, err := geocode.NewFromFile(cfg.PlacesPath)
		if err != nil {
			logger.Warn().Err(err).Str("path", cfg.PlacesPath).Msg("gazetteer unavailable; responses will omit place labels")
		} else {
			places = g
		}
	}

	changeBus := bus.NewInMemoryBus(64)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	app := httpapi.RegisterRoutes(r, db, changeBus, places, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	// The sweeper flips abandoned records offline so they stop consuming
	// index space. Reads never depend on it; staleness is decided at
	// query time from last_update_at.
	sweeper := &services.RefreshScheduler{
		Name:     "stale-sweep",
		Interval: cfg.Presence.PollInterval,
		Jitter:   0.1,
		Log:      logger,
		Task: func(ctx context.Context) error {
			n, err := app.Tracker.SweepStale(ctx, cfg.Presence.StaleWindow)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Debug().Int64("flipped_offline", n).Msg("stale sweep")
			}
			return nil
		},
	}
	go sweeper.Run(ctx)

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("base_path", cfg.APIBasePath).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	app.Feed.CloseAll()
	changeBus.Close()

	if err := shutdownOTel(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("otel shutdown failed")
	}
	logger.Info().Msg("stopped")
}
