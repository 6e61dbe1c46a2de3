// Package server runs the Folio HTTP server. It owns the DefraDB container
// lifecycle, starting it on server start and stopping it on shutdown, and
// wires the batch and pipeline services over it.
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

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/batch"
	"github.com/jackzampolin/folio/internal/config"
	"github.com/jackzampolin/folio/internal/gutter"
	"github.com/jackzampolin/folio/internal/home"
	"github.com/jackzampolin/folio/internal/jobs"
	"github.com/jackzampolin/folio/internal/pipeline"
	"github.com/jackzampolin/folio/internal/provider"
	"github.com/jackzampolin/folio/internal/schema"
	"github.com/jackzampolin/folio/internal/server/endpoints"
	"github.com/jackzampolin/folio/internal/store"
	"github.com/jackzampolin/folio/internal/svcctx"
)

// Server is the main Folio HTTP server.
type Server struct {
	httpServer   *http.Server
	storeManager *store.DockerManager
	storeClient  *store.Client
	configMgr    *config.Manager
	homeDir      *home.Dir
	logger       *slog.Logger

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
	// StoreDataPath is the path to persist DefraDB data
	StoreDataPath string
	// StoreConfig holds DefraDB container settings
	StoreConfig store.DockerConfig
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// HomeDir is the folio home directory
	HomeDir *home.Dir
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

	if cfg.StoreDataPath != "" {
		cfg.StoreConfig.DataPath = cfg.StoreDataPath
	}

	storeManager, err := store.NewDockerManager(cfg.StoreConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create store manager: %w", err)
	}

	s := &Server{
		storeManager: storeManager,
		configMgr:    cfg.ConfigManager,
		homeDir:      cfg.HomeDir,
		logger:       cfg.Logger,
	}

	// Provider settings are read once at startup; a restart picks up
	// config edits. Other reloadable settings apply through OnChange.
	if cfg.ConfigManager != nil {
		cfg.ConfigManager.OnChange(func(c *config.Config) {
			cfg.Logger.Info("configuration reloaded",
				"provider", c.Provider.Type, "model", c.Provider.Model)
		})
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{
		StoreManager:    storeManager,
		SwaggerSpecPath: endpoints.GetSwaggerSpecPath(),
	}) {
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

// Start starts the server and the document store. It blocks until the
// context is cancelled or an error occurs. If an existing store container
// exists, it validates that its configuration matches.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.storeManager.ValidateExisting(ctx); err != nil {
		s.setNotRunning()
		return fmt.Errorf("existing DefraDB container incompatible: %w", err)
	}

	s.logger.Info("starting DefraDB")
	if err := s.storeManager.Start(ctx); err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to start DefraDB: %w", err)
	}

	s.storeClient = store.NewClient(s.storeManager.URL())

	if err := s.storeClient.HealthCheck(ctx); err != nil {
		_ = s.shutdown()
		return fmt.Errorf("DefraDB health check failed: %w", err)
	}
	s.logger.Info("DefraDB is ready", "url", s.storeManager.URL())

	s.logger.Info("initializing schemas")
	if err := schema.Initialize(ctx, s.storeClient, s.logger); err != nil {
		_ = s.shutdown()
		return fmt.Errorf("schema initialization failed: %w", err)
	}

	s.services = s.buildServices()

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

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

// buildServices constructs the service graph once the store is healthy.
func (s *Server) buildServices() *svcctx.Services {
	var cfg *config.Config
	if s.configMgr != nil {
		cfg = s.configMgr.Get()
	} else {
		cfg = config.DefaultConfig()
	}

	p := s.buildProvider(cfg)
	fetcher := provider.NewImageFetcher(time.Duration(cfg.Batch.FetchTimeoutSeconds) * time.Second)

	books := store.NewBooks(s.storeClient)
	pages := store.NewPages(s.storeClient)
	jobManager := jobs.NewManager(s.storeClient, s.logger)
	records := batch.NewRecords(s.storeClient)
	submitter := batch.NewSubmitter(pages, records, jobManager, p, fetcher, s.logger)
	reconciler := batch.NewReconciler(records, pages, jobManager, p, s.logger)
	orchestrator := pipeline.NewOrchestrator(books, pages, jobManager, submitter, p, s.logger)

	// The reconciler reports finished batch jobs back into any pipeline
	// step waiting on them.
	reconciler.SetFinalizer(orchestrator)

	modelPath := ""
	if s.homeDir != nil {
		modelPath = s.homeDir.ModelPath()
	}
	calibrator := gutter.NewCalibrator(p, cfg.Provider.Model, s.logger)
	splitter := gutter.NewService(pages, fetcher, calibrator, modelPath, s.logger)

	return &svcctx.Services{
		Store:        s.storeClient,
		Books:        books,
		Pages:        pages,
		JobManager:   jobManager,
		BatchRecords: records,
		Submitter:    submitter,
		Reconciler:   reconciler,
		Orchestrator: orchestrator,
		Splitter:     splitter,
		Provider:     p,
		Config:       s.configMgr,
		Logger:       s.logger,
		Home:         s.homeDir,
	}
}

// buildProvider creates the inference provider from config.
func (s *Server) buildProvider(cfg *config.Config) provider.Provider {
	switch cfg.Provider.Type {
	case "", "openai":
		return provider.NewOpenAIClient(provider.OpenAIConfig{
			APIKey:     cfg.ResolvedAPIKey(),
			Model:      cfg.Provider.Model,
			MaxRetries: cfg.Provider.MaxRetries,
			Timeout:    time.Duration(cfg.Provider.TimeoutSeconds) * time.Second,
			BaseURL:    cfg.Provider.BaseURL,
		})
	default:
		s.logger.Warn("unknown provider type, falling back to openai", "type", cfg.Provider.Type)
		return provider.NewOpenAIClient(provider.OpenAIConfig{
			APIKey: cfg.ResolvedAPIKey(),
			Model:  cfg.Provider.Model,
		})
	}
}

// shutdown performs graceful shutdown of both HTTP server and the store.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.logger.Info("stopping DefraDB")
	if err := s.storeManager.Stop(shutdownCtx); err != nil {
		s.logger.Error("DefraDB stop error", "error", err)
	}

	if err := s.storeManager.Close(); err != nil {
		s.logger.Error("store manager close error", "error", err)
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

// StoreClient returns the document store client.
// Returns nil if the server hasn't started yet.
func (s *Server) StoreClient() *store.Client {
	return s.storeClient
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
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
// Returns 503 Service Unavailable until the store and services are ready.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.storeClient == nil || s.services == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
