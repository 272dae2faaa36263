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

	"peakfit/workout-catalog/internal/api"
	"peakfit/workout-catalog/internal/bootstrap"
	"peakfit/workout-catalog/internal/config"
	"peakfit/workout-catalog/internal/logging"
	"peakfit/workout-catalog/internal/service"
)

func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		fallback := logging.New(logging.DefaultConfig())
		fallback.Fatal().Err(err).Msg("could not load config")
	}
	logger := logging.New(cfg.Log)
	logger.Info().Str("backend", cfg.Store.Backend).Str("scope", cfg.Catalog.Scope).Msg("starting workout catalog server")

	if cfg.JWT.Secret == "" {
		logger.Fatal().Msg("jwt.secret (JWT_SECRET) is required")
	}

	// --- Store, catalog and file storage ---
	startCtx, cancelStart := context.WithTimeout(context.Background(), 1*time.Minute)
	app, err := bootstrap.Open(startCtx, cfg, logger)
	cancelStart()
	if err != nil {
		logger.Fatal().Err(err).Msg("could not open catalog")
	}
	defer func() {
		if err := app.Close(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to close store")
		}
	}()

	// --- Initialize Services ---
	workoutService := service.NewWorkoutService(app.Catalog, app.Files, cfg.S3.PresignExpiry, logger)

	// --- Initialize Gin Engine ---
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, cfg.JWT.Secret, logger, workoutService)

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info().Str("address", cfg.Server.Address).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("ListenAndServe error")
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down server")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server exiting")
}
