// Package httpapi provides the HTTP API for forged.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/forged/internal/config"
	"github.com/fyrsmithlabs/forged/internal/logging"
	"github.com/fyrsmithlabs/forged/internal/queue"
	"github.com/fyrsmithlabs/forged/internal/secrets"
	"github.com/fyrsmithlabs/forged/internal/workspace"
)

// Server provides HTTP endpoints for forged.
type Server struct {
	echo     *echo.Echo
	queue    *queue.Queue
	store    workspace.Store
	manager  *workspace.Manager
	scrubber secrets.Scrubber
	log      *logging.Logger
	cfg      config.ServerConfig
}

// NewServer creates a new HTTP server.
func NewServer(q *queue.Queue, store workspace.Store, manager *workspace.Manager, scrubber secrets.Scrubber, log *logging.Logger, cfg config.ServerConfig) (*Server, error) {
	if q == nil {
		return nil, errors.New("queue cannot be nil")
	}
	if store == nil {
		return nil, errors.New("workspace store cannot be nil")
	}
	if manager == nil {
		return nil, errors.New("workspace manager cannot be nil")
	}
	if scrubber == nil {
		return nil, errors.New("scrubber cannot be nil")
	}
	if log == nil {
		return nil, errors.New("logger is required for request tracking and debugging")
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

			log.Info(c.Request().Context(), "http request",
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
		queue:    q,
		store:    store,
		manager:  manager,
		scrubber: scrubber,
		log:      log.Named("http"),
		cfg:      cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/jobs", s.handleSubmitJob)
	v1.GET("/jobs/:id", s.handleGetJob)
	v1.GET("/workspaces", s.handleListWorkspaces)
	v1.GET("/workspaces/:id", s.handleGetWorkspace)
	v1.POST("/workspaces", s.handleCreateWorkspace)
	v1.DELETE("/workspaces/:id", s.handleDeleteWorkspace)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.log.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the route tree for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
