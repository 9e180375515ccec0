package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"taskhost/internal/pkg/config"
	"taskhost/internal/pkg/health"
	"taskhost/internal/pkg/host"
	"taskhost/internal/pkg/logger"
	"taskhost/internal/pkg/telemetry"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Server wraps the Echo server exposing health and processor status
type Server struct {
	echo   *echo.Echo
	config *config.Config
	logger *logger.Logger
}

// Params holds the dependencies of the status server
type Params struct {
	fx.In

	Config *config.Config
	Logger *logger.Logger
	Host   *host.Host
	Health *health.Service
	Store  *telemetry.Store `optional:"true"`
}

// NewEchoServer creates a new Echo server instance
func NewEchoServer(p Params) *Server {
	e := echo.New()

	// Hide Echo banner
	e.HideBanner = true
	e.HidePort = true

	e.Server.ReadTimeout = time.Duration(p.Config.Server.ReadTimeout) * time.Second
	e.Server.WriteTimeout = time.Duration(p.Config.Server.WriteTimeout) * time.Second

	setupMiddleware(e, p.Logger)

	e.GET("/health", health.Handler(p.Health))
	e.GET("/health/live", health.LivenessHandler())
	e.GET("/health/ready", health.ReadinessHandler(p.Health))

	h := &handlers{host: p.Host, store: p.Store, logger: p.Logger}
	h.register(e)

	p.Logger.Info("Echo server initialized")

	return &Server{
		echo:   e,
		config: p.Config,
		logger: p.Logger,
	}
}

// setupMiddleware configures Echo middleware
func setupMiddleware(e *echo.Echo, log *logger.Logger) {
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLoggerMiddleware(log))
	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: 30 * time.Second,
	}))
}

// requestLoggerMiddleware creates a custom logger middleware
func requestLoggerMiddleware(log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			res := c.Response()

			err := next(c)

			log.Debug("HTTP request",
				zap.String("request_id", res.Header().Get(echo.HeaderXRequestID)),
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", res.Status),
				zap.Int64("latency_ms", time.Since(start).Milliseconds()),
			)

			return err
		}
	}
}

// GetEcho returns the Echo instance
func (s *Server) GetEcho() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server; it blocks until the server stops
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.logger.Info("Starting HTTP server", zap.String("address", addr))
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.echo.Shutdown(ctx)
}

// Response is a standard API response structure
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   any    `json:"error,omitempty"`
	Message string `json:"message"`
}

// SuccessResponse creates a success response
func SuccessResponse(c echo.Context, statusCode int, data any, message string) error {
	return c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// ErrorResponse creates an error response
func ErrorResponse(c echo.Context, statusCode int, err any, message string) error {
	return c.JSON(statusCode, Response{
		Success: false,
		Error:   err,
		Message: message,
	})
}
