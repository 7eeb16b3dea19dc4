// Package server exposes the review pipeline, due queue and statistics
// over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/abhisek/mnemo/internal/config"
	"github.com/abhisek/mnemo/internal/due"
	"github.com/abhisek/mnemo/internal/mastery"
	"github.com/abhisek/mnemo/internal/metrics"
	"github.com/abhisek/mnemo/internal/review"
	"github.com/abhisek/mnemo/internal/session"
	"github.com/abhisek/mnemo/internal/store"
)

// Reviews is the write side: the review pipeline.
type Reviews interface {
	HandleReview(ctx context.Context, req review.Request) (*review.Response, error)
	StartSession(ctx context.Context, studentID string) (*store.Session, error)
	Mastery(ctx context.Context, studentID, unitID string) (*mastery.UnitMastery, error)
	Audit(ctx context.Context, studentID, cardID string) (*review.AuditReport, error)
}

// DueLister serves due lists.
type DueLister interface {
	ListDue(ctx context.Context, studentID string, now time.Time, limit int) iter.Seq2[due.Item, error]
}

// StatsReader serves session statistics.
type StatsReader interface {
	Summarize(ctx context.Context, studentID string, w session.Window) (*session.Stats, error)
	Daily(ctx context.Context, studentID string, w session.Window) ([]store.DailyActivity, error)
}

// Pinger reports whether storage is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the components the handlers call.
type Deps struct {
	Reviews Reviews
	Due     DueLister
	Stats   StatsReader
	Health  Pinger

	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
	Now      func() time.Time
	Location *time.Location
}

// Server is the HTTP API.
type Server struct {
	e    *echo.Echo
	cfg  config.ServerConfig
	deps Deps
}

// New builds the server and registers every route.
func New(cfg config.ServerConfig, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(deps.Logger)

	s := &Server{e: e, cfg: cfg, deps: deps}
	s.middleware()
	s.routes()
	return s
}

func (s *Server) middleware() {
	s.e.Use(middleware.RequestID())
	s.e.Use(requestLogger(s.deps.Logger, s.deps.Metrics))
	s.e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			s.deps.Logger.Error("panic in handler",
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
				zap.Error(err),
				zap.ByteString("stack", stack))
			return err
		},
	}))
	if rl := s.cfg.RateLimit; rl.Enabled {
		s.e.Use(rateLimit(NewRateLimiter(rl.RPS, rl.Burst)))
	}
}

func (s *Server) routes() {
	s.e.GET("/healthz", s.health)
	if s.deps.Gatherer != nil {
		s.e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	s.e.POST("/reviews", s.postReview)
	s.e.POST("/sessions", s.postSession)
	s.e.GET("/items/due", s.getDue)
	s.e.GET("/mastery/:studentId/:unitId", s.getMastery)
	s.e.GET("/students/:studentId/summary", s.getSummary)
	s.e.GET("/students/:studentId/activity", s.getActivity)
	s.e.GET("/students/:studentId/cards/:cardId/audit", s.getAudit)
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.e
}

// Start listens on the configured address and blocks until the server is
// shut down. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.e.Server.ReadTimeout = s.cfg.ReadTimeout
	s.e.Server.WriteTimeout = s.cfg.WriteTimeout
	s.deps.Logger.Info("http server listening", zap.String("addr", s.cfg.Addr))
	if err := s.e.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.e.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func (s *Server) health(c echo.Context) error {
	if s.deps.Health != nil {
		if err := s.deps.Health.Ping(c.Request().Context()); err != nil {
			s.deps.Logger.Warn("health check failed", zap.Error(err))
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
