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

	"github.com/jackzampolin/distill/internal/api"
	"github.com/jackzampolin/distill/internal/config"
	"github.com/jackzampolin/distill/internal/defra"
	"github.com/jackzampolin/distill/internal/llm"
	"github.com/jackzampolin/distill/internal/pipeline"
	"github.com/jackzampolin/distill/internal/schema"
	"github.com/jackzampolin/distill/internal/server/endpoints"
	"github.com/jackzampolin/distill/internal/store"
	"github.com/jackzampolin/distill/internal/svcctx"
)

// Server is the main Distill HTTP server.
// It manages the DefraDB container lifecycle - starting it on server start
// and stopping it on server shutdown.
type Server struct {
	httpServer   *http.Server
	defraManager *defra.DockerManager
	defraClient  *defra.Client
	store        store.Store
	llmClient    *reloadableClient
	orchestrator *pipeline.Orchestrator
	configMgr    *config.Manager
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
	// DefraDataPath is the path to persist DefraDB data
	DefraDataPath string
	// DefraConfig holds DefraDB container settings
	DefraConfig defra.DockerConfig
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
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

	// Set up DefraDB data path
	if cfg.DefraDataPath != "" {
		cfg.DefraConfig.DataPath = cfg.DefraDataPath
	}

	defraManager, err := defra.NewDockerManager(cfg.DefraConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create defra manager: %w", err)
	}

	// LLM client sits behind a swappable wrapper so a config reload can
	// replace it without restarting the orchestrator.
	llmClient := &reloadableClient{}
	if cfg.ConfigManager != nil {
		if err := llmClient.reload(cfg.ConfigManager.Get(), cfg.Logger); err != nil {
			return nil, fmt.Errorf("failed to create llm client: %w", err)
		}

		// Watch for config changes
		cfg.ConfigManager.OnChange(func(c *config.Config) {
			if err := llmClient.reload(c, cfg.Logger); err != nil {
				cfg.Logger.Error("llm client reload failed", "error", err)
				return
			}
			cfg.Logger.Info("llm client reloaded from config")
		})
	}

	s := &Server{
		defraManager: defraManager,
		llmClient:    llmClient,
		configMgr:    cfg.ConfigManager,
		logger:       cfg.Logger,
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All() {
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

// Start starts the server and DefraDB.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	// Start DefraDB
	s.logger.Info("starting DefraDB")
	if err := s.defraManager.Start(ctx); err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to start DefraDB: %w", err)
	}

	// Create client after DefraDB is up
	s.defraClient = defra.NewClient(s.defraManager.URL())

	// Verify DefraDB is healthy
	if err := s.defraClient.HealthCheck(ctx); err != nil {
		_ = s.shutdown() // Clean up DefraDB on failure
		return fmt.Errorf("DefraDB health check failed: %w", err)
	}
	s.logger.Info("DefraDB is ready", "url", s.defraManager.URL())

	// Initialize schemas
	s.logger.Info("initializing schemas")
	if err := schema.Initialize(ctx, s.defraClient, s.logger); err != nil {
		_ = s.shutdown()
		return fmt.Errorf("schema initialization failed: %w", err)
	}

	// Create store and orchestrator
	s.store = store.NewDefraStore(s.defraClient, s.logger)
	s.orchestrator = pipeline.NewOrchestrator(s.store, s.llmClient, s.logger)

	// Create services struct for context enrichment
	s.services = &svcctx.Services{
		Store:        s.store,
		DefraClient:  s.defraClient,
		LLM:          s.llmClient,
		Orchestrator: s.orchestrator,
		Config:       s.configMgr,
		Logger:       s.logger,
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
			_ = s.shutdown() // Clean up DefraDB on HTTP error
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown performs graceful shutdown of the HTTP server, any in-flight
// pipeline runs, and DefraDB.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	// Shutdown HTTP server with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	// Let in-flight pipeline runs checkpoint their progress
	if s.orchestrator != nil {
		s.logger.Info("waiting for pipeline runs to finish")
		s.orchestrator.Wait()
	}

	// Stop DefraDB
	s.logger.Info("stopping DefraDB")
	if err := s.defraManager.Stop(shutdownCtx); err != nil {
		s.logger.Error("DefraDB stop error", "error", err)
	}

	// Close Docker client
	if err := s.defraManager.Close(); err != nil {
		s.logger.Error("DefraDB manager close error", "error", err)
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

// DefraClient returns the DefraDB client.
// Returns nil if the server hasn't started yet.
func (s *Server) DefraClient() *defra.Client {
	return s.defraClient
}

// Store returns the book store.
// Returns nil if the server hasn't started yet.
func (s *Server) Store() store.Store {
	return s.store
}

// Orchestrator returns the pipeline orchestrator.
// Returns nil if the server hasn't started yet.
func (s *Server) Orchestrator() *pipeline.Orchestrator {
	return s.orchestrator
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
// Returns 503 Service Unavailable if DefraDB or the store aren't ready.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.defraClient == nil || s.store == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}

// reloadableClient is an llm.Client whose inner client can be swapped
// when configuration changes. In-flight requests keep the client they
// started with.
type reloadableClient struct {
	mu    sync.RWMutex
	inner llm.Client
}

var _ llm.Client = (*reloadableClient)(nil)

func (c *reloadableClient) reload(cfg *config.Config, logger *slog.Logger) error {
	llmCfg := cfg.ToLLMConfig()
	llmCfg.Logger = logger
	client, err := llm.NewOpenAIClient(llmCfg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.inner = client
	c.mu.Unlock()
	return nil
}

func (c *reloadableClient) get() llm.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inner
}

func (c *reloadableClient) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResult, error) {
	inner := c.get()
	if inner == nil {
		return nil, errors.New("llm client not configured")
	}
	return inner.Chat(ctx, req)
}

func (c *reloadableClient) Name() string {
	inner := c.get()
	if inner == nil {
		return "unconfigured"
	}
	return inner.Name()
}
