// Package server is the HTTP control plane. It owns the database
// lifecycle: when no external DSN is configured it starts the local
// Docker-managed Postgres, applies migrations, and tears the container
// down on shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crestline-labs/duework/internal/api"
	"github.com/crestline-labs/duework/internal/completion"
	"github.com/crestline-labs/duework/internal/config"
	"github.com/crestline-labs/duework/internal/home"
	"github.com/crestline-labs/duework/internal/server/endpoints"
	"github.com/crestline-labs/duework/internal/store"
	"github.com/crestline-labs/duework/internal/svcctx"
)

// Server is the duework HTTP control plane.
type Server struct {
	httpServer *http.Server
	dbManager  *store.DockerManager // nil for external databases
	pool       *pgxpool.Pool
	jobStore   store.Store
	registry   *completion.Registry
	configMgr  *config.Manager
	homeDir    *home.Dir
	logger     *slog.Logger

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8080)
	Port string
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Home is the duework home directory
	Home *home.Dir
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ConfigManager == nil {
		return nil, errors.New("server requires a config manager")
	}

	appCfg := cfg.ConfigManager.Get()

	// Manage the local Postgres container only when no external DSN is
	// configured.
	var dbManager *store.DockerManager
	if appCfg.Database.DSN == "" {
		var dataPath string
		if cfg.Home != nil {
			dataPath = cfg.Home.PostgresDataPath()
		}
		var err error
		dbManager, err = store.NewDockerManager(store.DockerConfig{
			ContainerName: appCfg.Database.ContainerName,
			Image:         appCfg.Database.Image,
			HostPort:      appCfg.Database.Port,
			DataPath:      dataPath,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create database manager: %w", err)
		}
	}

	// Create provider registry with hot reload from config.
	registry := completion.NewRegistry()
	registry.SetLogger(cfg.Logger)
	registry.Reload(appCfg.ToRegistryConfig())
	cfg.ConfigManager.OnChange(func(c *config.Config) {
		registry.Reload(c.ToRegistryConfig())
		cfg.Logger.Info("provider registry reloaded from config")
	})

	s := &Server{
		dbManager: dbManager,
		registry:  registry,
		configMgr: cfg.ConfigManager,
		homeDir:   cfg.Home,
		logger:    cfg.Logger,
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{DBManager: dbManager}) {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      s.withServices(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start starts the server and its database.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	dsn := s.configMgr.Get().Database.DSN
	if s.dbManager != nil {
		s.logger.Info("starting local postgres")
		if err := s.dbManager.Start(ctx); err != nil {
			s.setNotRunning()
			return fmt.Errorf("failed to start local postgres: %w", err)
		}
		dsn = s.dbManager.DSN()
	}

	pool, err := store.Open(ctx, store.Config{
		DSN:      dsn,
		MaxConns: s.configMgr.Get().Database.MaxConns,
	}, s.logger)
	if err != nil {
		_ = s.shutdown()
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.pool = pool

	if err := store.Migrate(ctx, pool, s.logger); err != nil {
		_ = s.shutdown()
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	s.jobStore = store.NewPG(pool)

	// Create services struct for context enrichment
	s.services = &svcctx.Services{
		Store:         s.jobStore,
		Registry:      s.registry,
		ConfigManager: s.configMgr,
		Logger:        s.logger,
		Home:          s.homeDir,
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown performs graceful shutdown of the HTTP server, pool, and any
// managed database container.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.pool != nil {
		s.pool.Close()
	}

	if s.dbManager != nil {
		s.logger.Info("stopping local postgres")
		if err := s.dbManager.Stop(shutdownCtx); err != nil {
			s.logger.Error("postgres stop error", "error", err)
		}
		if err := s.dbManager.Close(); err != nil {
			s.logger.Error("database manager close error", "error", err)
		}
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Store returns the job store.
// Returns nil if the server hasn't started yet.
func (s *Server) Store() store.Store {
	return s.jobStore
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Registry returns the provider registry.
func (s *Server) Registry() *completion.Registry {
	return s.registry
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable until the database is ready.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.jobStore == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
