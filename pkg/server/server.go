// Package server exposes the agent over HTTP: recipient registration, a direct
// capability trigger, health and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"coinpulse/pkg/logging"
	"coinpulse/pkg/metrics"
	"coinpulse/pkg/network"
)

// AgentInfo contains basic agent information
type AgentInfo struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities"`
	Description  string   `json:"description"`
	Asset        string   `json:"asset"`
}

// Invoker runs one sentiment invocation.
type Invoker interface {
	Run(ctx context.Context, workspaceID string) (string, error)
}

// RecipientStore receives the chat id registered for webhook delivery.
type RecipientStore interface {
	Set(id string)
	Get() string
}

// StatusGetter reports the health of the supervised background tasks.
type StatusGetter interface {
	IsHealthy() bool
	Status() []network.TaskStatus
}

// Check is a named dependency probe used by /health.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

type Config struct {
	Port               string
	DefaultWorkspaceID string
	RegisterRatePerSec float64
	RegisterBurst      int
}

type Server struct {
	echo        *echo.Echo
	cfg         Config
	info        *AgentInfo
	invoker     Invoker
	recipients  RecipientStore
	status      StatusGetter
	checks      []Check
	metrics     *metrics.Metrics
	metricsHTTP http.Handler
	startTime   time.Time
	logger      *slog.Logger
}

// Option customizes a Server.
type Option func(*Server)

// WithStatus reports supervisor state on /health and /status.
func WithStatus(s StatusGetter) Option {
	return func(srv *Server) { srv.status = s }
}

// WithChecks adds dependency probes to /health.
func WithChecks(checks ...Check) Option {
	return func(srv *Server) { srv.checks = append(srv.checks, checks...) }
}

// WithMetrics records registrations and serves h on /metrics.
func WithMetrics(m *metrics.Metrics, h http.Handler) Option {
	return func(srv *Server) {
		srv.metrics = m
		srv.metricsHTTP = h
	}
}

func NewServer(cfg Config, info *AgentInfo, invoker Invoker, recipients RecipientStore, opts ...Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:       e,
		cfg:        cfg,
		info:       info,
		invoker:    invoker,
		recipients: recipients,
		startTime:  time.Now(),
		logger:     slog.Default().With("component", "server"),
	}
	for _, opt := range opts {
		opt(srv)
	}

	e.Use(middleware.Recover())
	e.Use(correlationMiddleware)
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			srv.logger.InfoContext(c.Request().Context(), "HTTP request", attrs...)
			return nil
		},
	}))

	srv.registerRoutes()
	return srv
}

// Handler returns the underlying HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is done, then shuts down gracefully. It fits
// network.TaskFunc so the server can run under the supervisor.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "port", s.cfg.Port)
		errCh <- s.echo.Start(fmt.Sprintf(":%s", s.cfg.Port))
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}

func (s *Server) registerLimiter() echo.MiddlewareFunc {
	r := s.cfg.RegisterRatePerSec
	if r <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	burst := s.cfg.RegisterBurst
	if burst < 1 {
		burst = 1
	}
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(r),
			Burst:     burst,
			ExpiresIn: 3 * time.Minute,
		}),
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]any{"success": false, "message": "Too many requests."})
		},
	})
}

// correlationMiddleware tags each request with a correlation id, honoring an
// incoming X-Correlation-ID header.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ctx := req.Context()
		if id := req.Header.Get("X-Correlation-ID"); id != "" {
			ctx = logging.WithID(ctx, id)
		}
		ctx, id := logging.EnsureID(ctx)
		c.SetRequest(req.WithContext(ctx))
		c.Response().Header().Set("X-Correlation-ID", id)
		return next(c)
	}
}

// MonitorCheck turns a dependency monitor into a Check that fails while the
// dependency is unhealthy.
func MonitorCheck(hm *network.HealthMonitor) Check {
	return Check{
		Name: hm.Name(),
		Fn: func(context.Context) error {
			if hm.Status() != network.HealthUnhealthy {
				return nil
			}
			if err := hm.LastError(); err != nil {
				return err
			}
			return errors.New(hm.Name() + " is unhealthy")
		},
	}
}
