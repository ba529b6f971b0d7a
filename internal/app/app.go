// Package app wires configuration, storage, auth, and the HTTP surface into
// a runnable server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/caarlos0/env/v11"

	server "satlink/server"
	"satlink/server/internal/auth"
	"satlink/server/internal/catalog"
	servernet "satlink/server/internal/net"
	"satlink/server/internal/store"
	"satlink/server/internal/store/postgres"
)

// Config is populated from the environment.
type Config struct {
	Addr        string        `env:"ADDR" envDefault:":8080"`
	DatabaseURL string        `env:"DATABASE_URL"`
	JWTKey      string        `env:"JWT_SIGNING_KEY,required,notEmpty"`
	JWTIssuer   string        `env:"JWT_ISSUER" envDefault:"satlink-portal"`
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"info"`
	Tick        time.Duration `env:"TICK_INTERVAL" envDefault:"1s"`
	Autosave    time.Duration `env:"AUTOSAVE_INTERVAL" envDefault:"30s"`
	Eviction    time.Duration `env:"IDLE_EVICTION" envDefault:"2m"`
	QueueLimit  int           `env:"COMMAND_QUEUE_LIMIT" envDefault:"16"`
	SendBuffer  int           `env:"SEND_BUFFER" envDefault:"32"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Run starts the server and blocks until ctx is cancelled or the listener
// fails.
func Run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open postgres store: %w", err)
		}
		defer pg.Close()
		st = pg
		logger.Info("using postgres checkpoint store")
	} else {
		st = store.NewMemoryStore()
		logger.Warn("DATABASE_URL not set, checkpoints are in-memory only")
	}

	verifier, err := auth.NewVerifier(cfg.JWTIssuer, []byte(cfg.JWTKey))
	if err != nil {
		return fmt.Errorf("construct token verifier: %w", err)
	}

	cat, err := catalog.Build()
	if err != nil {
		return fmt.Errorf("build command catalog: %w", err)
	}

	regCfg := server.DefaultConfig()
	regCfg.TickInterval = cfg.Tick
	regCfg.AutosaveInterval = cfg.Autosave
	regCfg.IdleEviction = cfg.Eviction
	regCfg.CommandQueueLimit = cfg.QueueLimit
	regCfg.SendBuffer = cfg.SendBuffer

	registry := server.NewRegistry(regCfg, st, auth.NewOwnerAuthorizer(st), logger)

	router := servernet.NewRouter(registry, verifier, cat, servernet.RouterConfig{
		Logger:     logger,
		SendBuffer: cfg.SendBuffer,
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Addr, "catalogHash", cat.Hash)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	if err := registry.Shutdown(shutdownCtx); err != nil {
		logger.Error("registry shutdown incomplete", "error", err)
	}
	logger.Info("server stopped")
	return nil
}
