// Package server exposes the snipd HTTP API: entry capture, reads, an
// SSE stream of metadata snapshots, action reversal, health, and
// metrics.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/snipd/internal/entry"
	"github.com/fyrsmithlabs/snipd/internal/state"
)

// Repository is the read/write surface the API needs.
type Repository interface {
	Insert(ctx context.Context, e *entry.Entry) error
	GetEntry(ctx context.Context, id string) (*entry.Entry, error)
	List(ctx context.Context, limit int) ([]*entry.Entry, error)
}

// Nudger wakes the pipeline after a capture.
type Nudger interface {
	Nudge()
}

// Reverser flips an executed action to reversed.
type Reverser interface {
	Reverse(ctx context.Context, entryID, actionID string) error
}

// Config holds HTTP server configuration.
type Config struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// DefaultConfig returns the default listen address.
func DefaultConfig() Config {
	return Config{Host: "localhost", Port: 8090}
}

// Server provides the snipd HTTP endpoints.
type Server struct {
	echo     *echo.Echo
	repo     Repository
	state    *state.Store
	reverser Reverser
	nudge    Nudger
	logger   *zap.Logger
	config   Config
}

// NewServer creates the HTTP server. The metrics handler is optional;
// nil disables /metrics.
func NewServer(repo Repository, st *state.Store, reverser Reverser, nudge Nudger, metrics http.Handler, logger *zap.Logger, cfg Config) (*Server, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if st == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:     e,
		repo:     repo,
		state:    st,
		reverser: reverser,
		nudge:    nudge,
		logger:   logger,
		config:   cfg,
	}
	s.registerRoutes(metrics)
	return s, nil
}

func (s *Server) registerRoutes(metrics http.Handler) {
	s.echo.GET("/health", s.handleHealth)
	if metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(metrics))
	}

	v1 := s.echo.Group("/api/v1")
	v1.POST("/entries", s.handleCapture)
	v1.GET("/entries", s.handleList)
	v1.GET("/entries/:id", s.handleGet)
	v1.GET("/entries/:id/events", s.handleEvents)
	v1.POST("/entries/:id/actions/:actionID/reverse", s.handleReverse)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
