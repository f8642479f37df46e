// Package http exposes the read-only operator API: health, metrics,
// model prices, balances, conversation history and a live receipt feed.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	logger "github.com/inference-gateway/chatledger/internal/logger"
	services "github.com/inference-gateway/chatledger/internal/services"
	echo "github.com/labstack/echo/v4"
	middleware "github.com/labstack/echo/v4/middleware"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker reports whether the storage backend is reachable
type HealthChecker interface {
	Health(ctx context.Context) error
	Dialect() string
}

// Deps are the services the API reads from
type Deps struct {
	Health           HealthChecker
	Ledger           *services.Ledger
	Catalog          *services.ModelCatalog
	Conversations    *services.ConversationService
	Events           *EventHub
	PageSize         int
	TransactionLimit int
}

// Server is the HTTP API server
type Server struct {
	echo    *echo.Echo
	address string
	deps    Deps
}

// NewServer creates the API server and registers its routes
func NewServer(address string, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	s := &Server{echo: e, address: address, deps: deps}
	s.RegisterRoutes(e)
	return s
}

// Handler returns the routed handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// RegisterRoutes wires every endpoint onto e
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", s.Healthz)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/v1")
	v1.GET("/models", s.ListModels)
	v1.GET("/users/:identity/balance", s.GetBalance)
	v1.GET("/users/:identity/history", s.GetHistory)
	if s.deps.Events != nil {
		v1.GET("/events", s.deps.Events.Serve)
	}
}

// Start serves until ctx is done, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http api listening", "address", s.address)
		if err := s.echo.Start(s.address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if s.deps.Events != nil {
		s.deps.Events.Close()
	}
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("http api stopped")
	return nil
}

func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			logger.Debug("http request",
				"method", c.Request().Method,
				"path", c.Path(),
				"status", c.Response().Status,
				"duration", time.Since(start).String())
			return nil
		}
	}
}
