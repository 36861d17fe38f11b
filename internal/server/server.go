package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/vnshop/authgate/internal/config"
	"github.com/vnshop/authgate/internal/response"
	"github.com/vnshop/authgate/internal/routes"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app     *fiber.App
	cfg     config.Config
	runtime *routes.Runtime
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	app := NewApp(cfg, logger)

	rt, err := routes.Setup(app, routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger})
	if err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, runtime: rt}, nil
}

// NewApp builds a Fiber app that renders every error in the response envelope.
// When cfg.ProxyHeader is set, client IPs (and so rate-limit keys) come from it.
// Parsed request values are kept as keys in the memory stores, so the app runs
// Immutable and never hands out views into fasthttp's reused buffers.
func NewApp(cfg config.Config, logger *slog.Logger) *fiber.App {
	return fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		Immutable:             true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		ProxyHeader:           cfg.ProxyHeader,
		ErrorHandler:          response.ErrorHandler(logger),
		DisableStartupMessage: !cfg.IsDev(),
	})
}

// Start launches the background janitors and blocks serving HTTP.
func (s *Server) Start(ctx context.Context) error {
	s.runtime.RunJanitors(ctx, s.cfg.JanitorInterval)
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
