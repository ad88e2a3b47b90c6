// Package server exposes the diagnostics HTTP surface: Prometheus metrics
// and, when enabled, the storage smoke test routes.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	appName         = "cachesweep"
	shutdownTimeout = 10 * time.Second

	// SmokeTestsEnv turns the smoke routes on regardless of server.smokeTests.
	SmokeTestsEnv = "CACHESWEEP_SMOKE_TESTS"
)

// ErrorResponse represents a structured error response
type ErrorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

type Options struct {
	Addr       string
	SmokeTests bool
	// Media backs the smoke routes. Required when SmokeTests is set.
	Media    MediaStore
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
	// NewID names smoke objects. Defaults to a dashless random UUID.
	NewID func() string
}

type Server struct {
	app    *fiber.App
	addr   string
	logger *zap.Logger
}

// SmokeTestsEnabled reports whether the smoke routes should be mounted.
func SmokeTestsEnabled(configured bool) bool {
	return configured || os.Getenv(SmokeTestsEnv) == "1"
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	app := fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
		IdleTimeout:           60 * time.Second,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			status := fiber.StatusInternalServerError
			message := "Internal Server Error"

			var fiberError *fiber.Error
			if errors.As(err, &fiberError) {
				status = fiberError.Code
				message = fiberError.Message
			}

			logErr := logger.Error
			if status < http.StatusInternalServerError {
				logErr = logger.Warn
			}
			logErr("Request failed",
				zap.Error(err),
				zap.String("url", c.Path()),
				zap.String("method", c.Method()),
				zap.Int("status", status))

			return c.Status(status).JSON(ErrorResponse{
				Status:  status,
				Message: message,
				Path:    c.Path(),
			})
		},
	})

	app.Use(recover.New())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	if opts.SmokeTests && opts.Media != nil {
		h := newSmokeHandler(opts.Media, logger, opts.NewID)
		smoke := app.Group("/smoke")
		smoke.Get("/health", h.Health)
		smoke.Get("/debug-test", h.DebugTest)
		smoke.Post("/media-upload", h.MediaUpload)
		logger.Warn("smoke test routes are enabled")
	}

	return &Server{app: app, addr: opts.Addr, logger: logger}
}

// App exposes the router for in-process requests.
func (s *Server) App() *fiber.App { return s.app }

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("diagnostics server listening", zap.String("addr", s.addr))
		errCh <- s.app.Listen(s.addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			return err
		}
		return <-errCh
	}
}
