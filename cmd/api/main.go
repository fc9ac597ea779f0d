package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pantrychef/internal/api"
	"pantrychef/internal/cache"
	"pantrychef/internal/config"
	"pantrychef/internal/generation"
	"pantrychef/internal/logger"
	"pantrychef/internal/metrics"
	"pantrychef/internal/platform/breaker"
	"pantrychef/internal/platform/gemini"
	"pantrychef/internal/platform/localllm"
	"pantrychef/internal/recipe"
	"pantrychef/internal/search"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "pantrychef",
		Short:        "Ingredient based recipe recommendation service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the config file (default ./config.yaml)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Load the built-in recipe catalogue and ingredient list into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), configPath)
		},
	})

	return root
}

func setup(configPath string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Development: cfg.Log.Development,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, log, nil
}

func runSeed(ctx context.Context, configPath string) error {
	cfg, log, err := setup(configPath)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	store, err := recipe.NewSQLStore(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("error creating recipe store: %w", err)
	}
	defer store.Close()

	n, err := recipe.Seed(ctx, store)
	if err != nil {
		return fmt.Errorf("failed to seed recipes: %w", err)
	}
	added, err := recipe.SeedIngredients(ctx, store)
	if err != nil {
		return fmt.Errorf("failed to seed common ingredients: %w", err)
	}
	log.Info("seed finished",
		zap.Int("inserted", n),
		zap.Int("ingredients", added),
		zap.String("driver", cfg.Database.Driver))
	return nil
}

func runServe(ctx context.Context, configPath string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log, err := setup(configPath)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	store, err := recipe.NewSQLStore(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("error creating recipe store: %w", err)
	}
	defer store.Close()

	if n, err := recipe.Seed(ctx, store); err != nil {
		log.Warn("failed to seed recipe catalogue", zap.Error(err))
	} else if n > 0 {
		log.Info("seeded empty recipe store", zap.Int("recipes", n))
	}
	if n, err := recipe.SeedIngredients(ctx, store); err != nil {
		log.Warn("failed to seed common ingredients", zap.Error(err))
	} else if n > 0 {
		log.Info("seeded common ingredients", zap.Int("ingredients", n))
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	backend, closeBackend, err := newBackend(ctx, cfg.Generation, log, m)
	if err != nil {
		return err
	}
	defer closeBackend()

	budget := cache.NewRateBudget(cfg.RateBudget.Limit, cfg.RateBudget.Window, log)

	var (
		generator search.Generator
		client    *generation.Client
	)
	if backend != nil {
		client = generation.NewClient(backend, log)
		generator = client
	}
	svc := search.NewService(
		store,
		generator,
		cache.New(cfg.Cache.TTL, cfg.Cache.MaxEntries),
		budget,
		search.Options{
			MinLocalResults:   cfg.Search.MinLocalResults,
			MinMatchScore:     cfg.Search.MinMatchScore,
			MaxResults:        cfg.Search.MaxResults,
			MaxIngredients:    cfg.Search.MaxIngredients,
			PantryBias:        cfg.Search.PantryBias,
			GenerationTimeout: cfg.Generation.Timeout,
			Retries:           cfg.Generation.Retries,
		},
		log,
		m,
	)

	handler := api.NewHandler(svc, store, budget, log)
	handler.SearchTimeout = cfg.Server.Timeout
	handler.Substituter = generation.NewSubstituter(client, budget, cfg.Generation.Timeout, log)

	r := newRouter(handler, routerConfig{
		CORSOrigins: cfg.Server.CORSOrigins,
		SearchRPS:   cfg.Server.SearchRPS,
		SearchBurst: cfg.Server.SearchBurst,
	}, log, m)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout + 5*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server",
			zap.String("addr", srv.Addr),
			zap.String("provider", cfg.Generation.Provider),
			zap.String("driver", cfg.Database.Driver))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// newBackend builds the completion backend for the configured provider,
// wrapped in a circuit breaker. It returns a nil backend for provider none.
func newBackend(ctx context.Context, cfg config.GenerationConfig, log *zap.Logger, m *metrics.Metrics) (generation.Completer, func(), error) {
	settings := breaker.Settings{
		ConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
		OpenTimeout:         cfg.Breaker.OpenTimeout,
	}

	switch cfg.Provider {
	case config.ProviderGemini:
		client, err := gemini.NewClient(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, nil, fmt.Errorf("error creating gemini client: %w", err)
		}
		closeFn := func() {
			if err := client.Close(); err != nil {
				log.Warn("failed to close gemini client", zap.Error(err))
			}
		}
		return breaker.New("gemini", client, settings, log, m), closeFn, nil
	case config.ProviderLocal:
		client := localllm.NewClient(cfg.BaseURL, cfg.Model, &http.Client{Timeout: cfg.Timeout}, log)
		return breaker.New("local", client, settings, log, m), func() {}, nil
	default:
		log.Info("generation disabled, searches use stored recipes only")
		return nil, func() {}, nil
	}
}
