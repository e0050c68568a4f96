package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/content-syndication-pipeline/internal/api"
	"github.com/content-syndication-pipeline/internal/config"
	"github.com/content-syndication-pipeline/internal/database"
	"github.com/content-syndication-pipeline/internal/imaging"
	"github.com/content-syndication-pipeline/internal/ingest"
	"github.com/content-syndication-pipeline/internal/langdetect"
	"github.com/content-syndication-pipeline/internal/llm"
	"github.com/content-syndication-pipeline/internal/models"
	"github.com/content-syndication-pipeline/internal/repository"
	"github.com/content-syndication-pipeline/internal/scheduler"
	"github.com/content-syndication-pipeline/internal/service"
	"github.com/content-syndication-pipeline/internal/vectorindex"
	"github.com/content-syndication-pipeline/internal/wordpress"
	"github.com/content-syndication-pipeline/pkg/logger"
)

func main() {
	migrateDown := flag.Bool("migrate-down", false, "roll back the last migration and exit")
	flag.Parse()

	// Initialize logger
	log := logger.New()
	log.Info().Msg("Starting content syndication pipeline...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Run migrations; an unset path uses the embedded set
	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if *migrateDown {
		if err := db.MigrateDown(migrationsPath); err != nil {
			log.Fatal().Err(err).Msg("Failed to roll back migration")
		}
		return
	}
	if err := db.RunMigrations(migrationsPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	repos := repository.New(db)

	// External collaborators
	chat := llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM)
	embedClient := chat
	if cfg.LLM.EmbeddingURL != "" {
		embedClient = llm.NewClient(cfg.LLM.EmbeddingURL, cfg.LLM.EmbeddingKey, cfg.LLM)
	}

	var inspector imaging.Inspector
	if cfg.Images.VisionModel != "" {
		inspector = llm.NewInspector(chat, cfg.Images.VisionModel, log)
	}

	caps := &service.Capabilities{
		Processor: llm.NewRewriter(chat, cfg.LLM.Model, cfg.LLM.FallbackModel, log),
		Languages: langdetect.New(),
		Embedder:  llm.NewEmbedder(embedClient, cfg.LLM.EmbeddingModel),
		Index:     vectorindex.New(repos.Article, cfg.Dedup.EmbeddingDim),
		Images:    imaging.Build(cfg.Images, chat, inspector, cfg.Poller.UserAgent, log),
		Publisher: wordpress.NewClient(cfg.Publisher.Timeout, log),
		Fetchers: map[models.SourceType]service.Fetcher{
			models.SourceTypeFeed: ingest.NewFeedFetcher(cfg.Poller.FetchTimeout, cfg.Poller.UserAgent),
			models.SourceTypeURL:  ingest.NewPageFetcher(cfg.Poller.FetchTimeout, cfg.Poller.UserAgent),
		},
	}

	// Initialize services
	services := service.NewServices(repos, caps, cfg, log)

	// Articles left in processing by a previous run are failed as interrupted
	recovered, err := services.Pipeline.RecoverInterrupted(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to recover interrupted articles")
	}
	if recovered > 0 {
		log.Warn().Int64("count", recovered).Msg("Recovered interrupted articles")
	}

	// Start background pipeline processor
	go services.Pipeline.StartProcessor(context.Background())
	log.Info().Int("workers", cfg.Pipeline.Workers).Msg("Background pipeline processor started")

	// Start poll and retry schedules
	sched := scheduler.NewScheduler(services.Poller, services.Retry, cfg.Poller, cfg.Retry, log)
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}
	services.Schedule = sched

	// Initialize router
	router := api.NewRouter(services, cfg, log)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop scheduling new work before draining the worker pool
	sched.Stop(ctx)
	services.Pipeline.StopProcessor()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited gracefully")
}
