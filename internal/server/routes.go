package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	s.echo.GET("/ws", s.handleWebSocket)

	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/status", s.handleStatus)
	s.echo.POST("/notify", s.handleNotify)

	// JSON counters for API consumers, Prometheus exposition for scrapers.
	s.echo.GET("/metrics", s.handleMetrics)
	s.echo.GET("/metrics/prometheus", echo.WrapHandler(promhttp.Handler()))
}
