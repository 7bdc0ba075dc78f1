// Package api exposes the daemon's control surface over a unix domain
// socket: message submission, status queries, retries and a websocket
// event stream.
package api

import (
	"context"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pvieira/beacon/internal/broadcast"
	"github.com/pvieira/beacon/internal/bus"
	"github.com/pvieira/beacon/internal/classify"
	"github.com/pvieira/beacon/internal/delivery"
	"github.com/pvieira/beacon/internal/mesh"
	"github.com/pvieira/beacon/internal/metrics"
	"github.com/pvieira/beacon/internal/retry"
	"go.uber.org/zap"
)

// Server serves the local HTTP API. It binds to a unix socket owned by the
// session so only the local user can reach it.
type Server struct {
	echo       *echo.Echo
	tracker    *delivery.Tracker
	scheduler  *broadcast.Scheduler
	retrier    *retry.Coordinator
	classifier *classify.Classifier
	transport  mesh.Transport
	bus        *bus.Bus
	logger     *zap.Logger
	socketPath string
	startedAt  time.Time
}

// New wires the handlers onto a fresh echo instance. Metrics may be nil,
// in which case the /metrics endpoint and HTTP middleware are skipped.
func New(
	tracker *delivery.Tracker,
	scheduler *broadcast.Scheduler,
	retrier *retry.Coordinator,
	classifier *classify.Classifier,
	transport mesh.Transport,
	b *bus.Bus,
	m *metrics.Metrics,
	socketPath string,
	logger *zap.Logger,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:       e,
		tracker:    tracker,
		scheduler:  scheduler,
		retrier:    retrier,
		classifier: classifier,
		transport:  transport,
		bus:        b,
		logger:     logger,
		socketPath: socketPath,
		startedAt:  time.Now(),
	}

	if m != nil {
		e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
			Subsystem:  "http",
			Registerer: m.Registry,
		}))
		e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
			Gatherer: m.Registry,
		}))
	}

	v1 := e.Group("/v1")
	v1.POST("/messages", s.createMessage)
	v1.GET("/messages", s.listMessages)
	v1.GET("/messages/:id", s.getMessage)
	v1.POST("/messages/:id/retry", s.retryMessage)
	v1.POST("/messages/:id/read", s.markRead)
	v1.POST("/messages/:id/cancel", s.cancelMessage)
	v1.GET("/quality", s.getQuality)
	v1.GET("/status", s.getStatus)
	v1.GET("/events", s.streamEvents)

	return s
}

// Start listens on the session socket. A stale socket file from a previous
// run is removed first; a live daemon is excluded by the session lock.
func (s *Server) Start() error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		ln.Close()
		return err
	}
	s.echo.Listener = ln

	s.logger.Info("api listening", zap.String("socket", s.socketPath))
	go func() {
		if err := s.echo.Start(""); err != nil && err != http.ErrServerClosed {
			s.logger.Error("api server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
