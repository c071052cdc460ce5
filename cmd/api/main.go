package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"studio/internal/history"
	"studio/internal/http/handlers"
	"studio/internal/http/httpapi"
	"studio/internal/infra"
	"studio/internal/infra/credentials"
	"studio/internal/pipeline"
	"studio/internal/providers/genai"
	"studio/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)

	fileStore, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	credStore := credentials.NewStore(runner)
	apiKey := strings.TrimSpace(cfg.GeminiAPIKey)
	keyFromEnv := apiKey != ""
	if !keyFromEnv {
		keyFromStore, err := credStore.GeminiAPIKey(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to load gemini api key from store")
		} else {
			apiKey = keyFromStore
		}
	}
	if apiKey == "" {
		logger.Warn().Msg("gemini api key missing; generation requests will fail until one is set")
	}

	gateway, err := genai.NewClient(genai.Options{
		APIKey:     apiKey,
		BaseURL:    cfg.GeminiBaseURL,
		Model:      cfg.GeminiModel,
		VideoModel: cfg.GeminiVideoModel,
		HTTPClient: &http.Client{Timeout: 120 * time.Second},
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure gemini client")
	}

	historyStore := history.NewPostgresStore(runner, fileStore, logger)

	service := pipeline.NewService(pipeline.Options{
		Gateway:      gateway,
		History:      historyStore,
		Logger:       logger,
		PollInterval: cfg.VideoPollEvery,
	})
	defer service.Shutdown()

	app := handlers.NewApp(service, historyStore, logger)
	router := httpapi.NewRouter(app, cfg, logger)
	server := infra.NewHTTPServer(cfg, router)

	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.HistorySweepSpec, func() {
		cutoff := time.Now().UTC().Add(-cfg.HistoryRetention)
		purged, err := historyStore.PurgeOlderThan(context.Background(), cutoff)
		if err != nil {
			logger.Error().Err(err).Msg("history sweep failed")
			return
		}
		if purged > 0 {
			logger.Info().Int64("purged", purged).Msg("history sweep done")
		}
	}); err != nil {
		logger.Fatal().Err(err).Msg("invalid history sweep schedule")
	}
	// When the key comes from the credentials store, pick up rotations
	// without a restart. An env-provided key is pinned for the process.
	if !keyFromEnv {
		if _, err := sweeper.AddFunc("@every 1m", func() {
			key, err := credStore.GeminiAPIKey(context.Background())
			if err != nil {
				logger.Warn().Err(err).Msg("gemini api key refresh failed")
				return
			}
			if key != "" {
				gateway.SetAPIKey(key)
			}
		}); err != nil {
			logger.Fatal().Err(err).Msg("invalid credential refresh schedule")
		}
	}
	sweeper.Start()
	defer sweeper.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Msgf("API listening on %s", server.Addr())
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return
	}
	logger.Info().Msg("server stopped")
}
