// Package server exposes feed generation over HTTP: generated files,
// on-demand export runs, health and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/dukerupert/feedgen/internal/domain"
	"github.com/dukerupert/feedgen/internal/service"
	"github.com/dukerupert/feedgen/internal/storage"
	"github.com/dukerupert/feedgen/internal/telemetry"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds server settings.
type Config struct {
	Port         uint16
	DocumentRoot string

	// Registry is scraped on /metrics. Nil serves the default registry.
	Registry *prometheus.Registry

	// Published serves feeds from the publishing backend under /published.
	// Nil disables the route.
	Published storage.Storage
}

// Server is the HTTP front of the feed service.
type Server struct {
	echo   *echo.Echo
	feeds  service.FeedService
	logger *slog.Logger
	config Config
}

// New creates a server and registers its routes.
func New(feeds service.FeedService, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, feeds: feeds, logger: logger, config: cfg}
	e.HTTPErrorHandler = s.errorHandler

	e.Use(middleware.RequestID())
	e.Use(echo.WrapMiddleware(telemetry.SentryMiddleware()))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error("panic recovered", "path", c.Path(), "error", err)
			return err
		},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("request",
				"method", v.Method,
				"path", v.URI,
				"status", v.Status,
				"duration", v.Latency,
				"request_id", v.RequestID,
			)
			return nil
		},
	}))

	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/healthz", s.health)
	s.echo.GET("/metrics", echo.WrapHandler(s.metricsHandler()))

	if s.config.DocumentRoot != "" {
		s.echo.Static("/feeds", s.config.DocumentRoot)
	}
	if s.config.Published != nil {
		s.echo.GET("/published/*", s.publishedFeed)
	}

	api := s.echo.Group("/api")
	api.GET("/profiles", s.listProfiles)
	api.POST("/exports/:profile", s.runExport)
}

func (s *Server) metricsHandler() http.Handler {
	if s.config.Registry == nil {
		return promhttp.Handler()
	}
	reg := s.config.Registry
	// Process and runtime collectors alongside feed metrics.
	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				s.logger.Warn("metrics collector not registered", "error", err)
			}
		}
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.logger.Info("http server shutting down")
	return s.echo.Shutdown(shutdownCtx)
}

// =============================================================================
// HANDLERS
// =============================================================================

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type profileSummary struct {
	Name      string   `json:"name"`
	CatalogID int64    `json:"catalog_id"`
	Schedule  string   `json:"schedule,omitempty"`
	Formats   []string `json:"formats"`
	Paths     []string `json:"paths"`
}

func (s *Server) listProfiles(c echo.Context) error {
	profiles := s.feeds.Profiles()
	out := make([]profileSummary, 0, len(profiles))
	for _, p := range profiles {
		ps := profileSummary{Name: p.Name, CatalogID: p.CatalogID}
		if p.Schedule > 0 {
			ps.Schedule = p.Schedule.String()
		}
		for _, f := range p.Feeds {
			ps.Formats = append(ps.Formats, f.Format)
			ps.Paths = append(ps.Paths, f.Path)
		}
		out = append(out, ps)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"profiles": out})
}

// runExport handles POST /api/exports/:profile.
//
// With ?async=true the run continues in the background and 202 is returned
// immediately. Otherwise the response carries the run result; a run where
// some feeds failed answers 500 with both the error and the partial result.
func (s *Server) runExport(c echo.Context) error {
	name := c.Param("profile")

	if c.QueryParam("async") == "true" {
		if _, ok := s.findProfile(name); !ok {
			return domain.NotFound("server.run_export", "profile", name)
		}
		ctx := context.WithoutCancel(c.Request().Context())
		go func() {
			if _, err := s.feeds.RunProfile(ctx, name); err != nil {
				s.logger.Error("background export failed", "profile", name, "error", err)
			}
		}()
		return c.JSON(http.StatusAccepted, map[string]string{"profile": name, "status": "started"})
	}

	result, err := s.feeds.RunProfile(c.Request().Context(), name)
	if err != nil {
		if result == nil {
			return err
		}
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error":  ErrorBody{Code: domain.EINTERNAL, Message: "One or more feeds failed"},
			"result": result,
		})
	}
	return c.JSON(http.StatusOK, result)
}

// publishedFeed handles GET /published/*, streaming a feed from the
// publishing backend.
func (s *Server) publishedFeed(c echo.Context) error {
	key := c.Param("*")
	rc, err := s.config.Published.Get(c.Request().Context(), key)
	if err != nil {
		return err
	}
	defer rc.Close()

	format := strings.TrimPrefix(path.Ext(key), ".")
	return c.Stream(http.StatusOK, storage.ContentType(format), rc)
}

func (s *Server) findProfile(name string) (string, bool) {
	for _, p := range s.feeds.Profiles() {
		if p.Name == name {
			return p.Name, true
		}
	}
	return "", false
}
