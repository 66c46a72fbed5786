// Package server exposes the fleet administration HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meetfleet/pkg/log"
	"meetfleet/pkg/poller"
	"meetfleet/pkg/reconciler"
	"meetfleet/pkg/store"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type Server struct {
	store                   *store.Store
	service                 *reconciler.Service
	poller                  *poller.FleetPoller
	gracefulShutdownTimeout time.Duration
	echo                    *echo.Echo
}

func NewServer(st *store.Store, service *reconciler.Service, p *poller.FleetPoller, gracefulShutdownTimeout time.Duration) *Server {
	return &Server{
		store:                   st,
		service:                 service,
		poller:                  p,
		gracefulShutdownTimeout: gracefulShutdownTimeout,
		echo:                    echo.New(),
	}
}

func (s *Server) Start(addr string) error {
	s.setupRoutes()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Starting fleet admin API")
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
		return s.Shutdown()
	}
}

func (s *Server) Shutdown() error {
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), s.gracefulShutdownTimeout)
	defer cancel()

	return s.echo.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.echo.Use(middleware.Logger())
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORS())

	s.echo.GET("/health", s.HealthHandler)
	s.echo.GET("/api/servers", s.ListServersHandler)
	s.echo.GET("/api/servers/:id", s.GetServerHandler)
	s.echo.POST("/api/servers/:id/panic", s.PanicHandler)
	s.echo.POST("/api/servers/:id/poll", s.PollHandler)
	s.echo.GET("/api/meetings", s.ListMeetingsHandler)
	s.echo.POST("/api/rooms/:id/start", s.StartMeetingHandler)
}
