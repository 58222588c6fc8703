// Package server provides the HTTP gateway for the parley engine.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/oklog/ulid/v2"

	"github.com/parley-ai/parley/internal/dispatch"
	"github.com/parley-ai/parley/internal/session"
	"github.com/parley-ai/parley/pkg/types"
)

// Config holds server configuration.
type Config struct {
	Hostname     string
	Port         int
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Hostname:     "127.0.0.1",
		Port:         8199,
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // No write timeout for SSE
	}
}

// Server is the HTTP gateway. It owns no engine state itself: inbound events
// flow into the dispatch buffer, inspection routes read the session store.
type Server struct {
	config   *Config
	router   *chi.Mux
	httpSrv  *http.Server
	store    *session.Store
	buffer   *dispatch.Buffer
	instance string

	appMu     sync.RWMutex
	appConfig *types.Config
}

// New creates a new Server instance.
func New(cfg *Config, appConfig *types.Config, store *session.Store, buffer *dispatch.Buffer) *Server {
	s := &Server{
		config:    cfg,
		router:    chi.NewRouter(),
		appConfig: appConfig,
		store:     store,
		buffer:    buffer,
		instance:  ulid.Make().String(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// SetConfig swaps the configuration served by the config route. Hot
// reload calls this; engine-level settings still apply on restart.
func (s *Server) SetConfig(cfg *types.Config) {
	s.appMu.Lock()
	s.appConfig = cfg
	s.appMu.Unlock()
}

func (s *Server) configSnapshot() *types.Config {
	s.appMu.RLock()
	defer s.appMu.RUnlock()
	return s.appConfig
}

// setupMiddleware configures middleware for the server.
func (s *Server) setupMiddleware() {
	// Request ID
	s.router.Use(middleware.RequestID)

	// Logging
	s.router.Use(middleware.Logger)

	// Recover from panics
	s.router.Use(middleware.Recoverer)

	// Real IP
	s.router.Use(middleware.RealIP)

	// CORS
	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Link", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Hostname, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
