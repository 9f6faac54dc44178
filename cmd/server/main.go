package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AdvantusAI/m8-collab/internal/api"
	"github.com/AdvantusAI/m8-collab/internal/cache"
	"github.com/AdvantusAI/m8-collab/internal/config"
	"github.com/AdvantusAI/m8-collab/internal/domain"
	"github.com/AdvantusAI/m8-collab/internal/export"
	"github.com/AdvantusAI/m8-collab/internal/repository"
	"github.com/AdvantusAI/m8-collab/internal/repository/postgres"
	"github.com/AdvantusAI/m8-collab/internal/service"
	"github.com/AdvantusAI/m8-collab/internal/storage"
	"github.com/AdvantusAI/m8-collab/pkg/logger"
)

func main() {
	cfg := config.Load()

	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
		logger.UseJSON()
	}
	logger.SetLevel(cfg.Log.Level)

	ctx := context.Background()

	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	pool, err := postgres.NewPool(ctx, &cfg.Database)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to open database pool")
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	summaryCache, err := cache.NewSummaryCache(cfg.Cache)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("Summary cache unavailable, continuing without it")
		summaryCache = nil
	}

	planning, err := service.PlanningFromConfig(cfg.Planning)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Invalid planning configuration")
	}
	defaultUnit, err := domain.ParseUnit(cfg.Planning.DefaultUnit)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Invalid default unit")
	}

	collab := service.NewCollaborationService(
		repository.NewSourceRepository(db.DB),
		postgres.NewCommercialInputRepository(pool),
		summaryCache,
		planning,
	)
	services := &api.Services{
		Collaboration: collab,
		Feeds:         service.NewFeedService(repository.NewFeedRepository(db.DB.DB), collab),
		DefaultUnit:   defaultUnit,
	}

	if cfg.Storage.Endpoint != "" {
		objectStore, err := storage.NewMinioClient(cfg.Storage)
		if err != nil {
			logger.Log.Warn().Err(err).Msg("Snapshot storage unavailable, export disabled")
		} else if err := objectStore.EnsureBucket(ctx); err != nil {
			logger.Log.Warn().Err(err).Msg("Snapshot bucket unavailable, export disabled")
		} else {
			services.Exporter = export.NewExporter(objectStore)
		}
	}

	router := api.NewRouter(services, cfg.Server.AllowedOrigins)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Log.Info().
			Str("port", cfg.Server.Port).
			Int("reference_year", planning.ReferenceYear).
			Str("window", planning.Window.String()).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Log.Info().Msg("Server exiting")
}
