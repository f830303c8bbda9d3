// Package app wires configuration, storage, the service layer and the HTTP
// server into a runnable process.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/agentflow-dev/toolsets/internal/api/router"
	"github.com/agentflow-dev/toolsets/internal/config"
	"github.com/agentflow-dev/toolsets/internal/registry"
	"github.com/agentflow-dev/toolsets/internal/service"
	"github.com/agentflow-dev/toolsets/internal/store"
	"github.com/agentflow-dev/toolsets/internal/telemetry"
)

// Run starts the toolset service and blocks until ctx is cancelled or a
// termination signal arrives.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := telemetry.NewLogger("toolsets", cfg.Development)
	defer func() { _ = logger.Sync() }()

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return fmt.Errorf("failed to load toolset catalog: %w", err)
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	svc := service.New(st, catalog, []byte(cfg.OAuthStateSecret), cfg.CallbackURL(), logger)

	mux := http.NewServeMux()
	_, handler := router.NewHumaAPI(cfg, svc, mux, metrics)

	server := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("address", cfg.ServerAddress),
			zap.Bool("postgres", cfg.DatabaseURL != ""))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func loadCatalog(cfg *config.Config) (*registry.Catalog, error) {
	if cfg.CatalogPath != "" {
		data, err := os.ReadFile(cfg.CatalogPath)
		if err != nil {
			return nil, err
		}
		return registry.Load(data)
	}
	return registry.LoadSeed()
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("no database configured, using in-memory store")
		return store.NewMemoryStore(), nil
	}
	st, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return st, nil
}
