package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"paintnum/internal/adapter/repo"
	"paintnum/internal/http/handlers"
	"paintnum/internal/http/httpapi"
	"paintnum/internal/infra"
	"paintnum/internal/paint"
	"paintnum/internal/quant"
	"paintnum/internal/storage"
	"paintnum/internal/stylize"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer pool.Close()

	if err := infra.RunMigrations(pool, logger); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	files, err := storage.NewFileStore(cfg.DataDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	stylizer := stylize.NewClient(stylize.Options{
		BaseURL: cfg.StylizeURL,
		Timeout: cfg.StylizeTimeout,
	})

	var reducer quant.Reducer
	switch cfg.Quantizer {
	case infra.QuantizerKMeans:
		reducer = quant.KMeans{}
	default:
		reducer = quant.MedianCut{}
	}

	pipeline := paint.New(paint.Config{
		OutputDir:      files.ProcessedPath(),
		StylizeEnabled: cfg.StylizeEnabled,
		MaxDimension:   cfg.MaxImageDim,
	}, stylizer, reducer, logger)

	app := handlers.NewApp(cfg, logger, repo.NewProjectRepository(pool), files, pipeline)
	router := httpapi.NewRouter(app)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
