package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/notifyd/notifyd/internal/config"
	errs "github.com/notifyd/notifyd/internal/errors"
	"github.com/notifyd/notifyd/internal/metrics"
	"github.com/notifyd/notifyd/internal/registry"
	"github.com/notifyd/notifyd/internal/scheduler"
	"github.com/notifyd/notifyd/internal/shutdown"
)

type Server struct {
	echo        *echo.Echo
	config      *config.Config
	clock       clockwork.Clock
	registry    *registry.Registry
	scheduler   *scheduler.Scheduler
	coordinator *shutdown.Coordinator
	aggregator  *metrics.Aggregator
	rateLimiter *ConnectionRateLimiter
	upgrader    websocket.Upgrader
}

func NewServer(
	cfg *config.Config,
	clock clockwork.Clock,
	reg *registry.Registry,
	sched *scheduler.Scheduler,
	coordinator *shutdown.Coordinator,
	aggregator *metrics.Aggregator,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(errs.Middleware())

	srv := &Server{
		echo:        e,
		config:      cfg,
		clock:       clock,
		registry:    reg,
		scheduler:   sched,
		coordinator: coordinator,
		aggregator:  aggregator,
		rateLimiter: NewConnectionRateLimiter(cfg.ConnectionsPerSecond, cfg.ConnectionBurst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf("%s:%s", s.config.Host, s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the underlying router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
