package routes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/vnshop/authgate/internal/auth"
	"github.com/vnshop/authgate/internal/config"
	"github.com/vnshop/authgate/internal/identity"
	"github.com/vnshop/authgate/internal/ledger"
	"github.com/vnshop/authgate/internal/logging"
	"github.com/vnshop/authgate/internal/metrics"
	"github.com/vnshop/authgate/internal/middleware"
	"github.com/vnshop/authgate/internal/notification"
	"github.com/vnshop/authgate/internal/ratelimit"
	"github.com/vnshop/authgate/internal/validation"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger

	// Optional overrides, mostly for tests.
	Registry *prometheus.Registry
	Notifier notification.Notifier
	Now      func() time.Time
	HashCost int
}

// Runtime exposes the services built by Setup and the in-process state that
// needs periodic eviction.
type Runtime struct {
	Users  *identity.Service
	Tokens *auth.TokenService

	challenges *ledger.MemoryStore
	limiter    *ratelimit.MemoryLimiter
	maxWindow  time.Duration
}

// RunJanitors evicts stale memory-backed challenges and rate-limit windows every
// interval until ctx is done. Redis-backed deployments rely on key expiry instead.
func (r *Runtime) RunJanitors(ctx context.Context, interval time.Duration) {
	if r.challenges != nil {
		go r.challenges.RunJanitor(ctx, interval)
	}
	if r.limiter != nil {
		go r.limiter.RunJanitor(ctx, interval, r.maxWindow)
	}
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) (*Runtime, error) {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.Env)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.Env)
		}
	}
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Registry == nil {
		d.Registry = prometheus.NewRegistry()
	}
	if d.Notifier == nil {
		d.Notifier = notification.NewLoggerNotifier(d.Logger)
	}

	// Middlewares
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	app.Use(recover.New())

	// Health and metrics
	RegisterHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))

	rt := &Runtime{}
	collector := metrics.NewCollector(d.Registry)

	var identityRepo identity.Repository
	if d.DB != nil {
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		identityRepo = identity.NewMemoryRepository()
	}
	identityOpts := []identity.Option{identity.WithClock(d.Now)}
	if d.HashCost > 0 {
		identityOpts = append(identityOpts, identity.WithHashCost(d.HashCost))
	}
	rt.Users = identity.NewService(identityRepo, identityOpts...)
	if err := grantAdmins(rt.Users, d.Cfg.AdminPhones, d.Logger); err != nil {
		return nil, err
	}

	var challengeStore ledger.Store
	var limiter ratelimit.Limiter
	if d.Cache != nil {
		challengeStore = ledger.NewRedisStore(d.Cache)
		limiter = ratelimit.NewRedisLimiter(d.Cache)
	} else {
		rt.challenges = ledger.NewMemoryStore()
		rt.limiter = ratelimit.NewMemoryLimiter(d.Now)
		rt.maxWindow = max(d.Cfg.RegisterRateWindow, d.Cfg.AuthRateWindow)
		challengeStore = rt.challenges
		limiter = rt.limiter
	}

	challenges := ledger.New(challengeStore,
		ledger.WithTTL(d.Cfg.OTPTTL),
		ledger.WithCodeGenerator(ledger.RandomCode(d.Cfg.OTPDigits)),
		ledger.WithClock(d.Now),
	)
	rt.Tokens = auth.NewTokenService(d.Cfg.JWTSecret,
		auth.WithTTLs(d.Cfg.SessionTokenTTL, d.Cfg.ResetTokenTTL),
		auth.WithIssuer(d.Cfg.AppName),
		auth.WithTokenClock(d.Now),
	)
	authSvc := auth.NewService(auth.Deps{
		Users:     rt.Users,
		Ledger:    challenges,
		Tokens:    rt.Tokens,
		Notifier:  d.Notifier,
		Metrics:   collector,
		Logger:    d.Logger,
		EchoCodes: d.Cfg.OTPEcho,
		Now:       d.Now,
	})

	g := gates{
		validator: validation.New(),
		limiter:   limiter,
		register:  ratelimit.Policy{Name: "register", Max: d.Cfg.RegisterRateMax, Window: d.Cfg.RegisterRateWindow},
		auth:      ratelimit.Policy{Name: "auth", Max: d.Cfg.AuthRateMax, Window: d.Cfg.AuthRateWindow},
		tokens:    rt.Tokens,
		logger:    d.Logger,
		metrics:   collector,
	}

	// API routes
	api := app.Group("/api")
	RegisterAuthRoutes(api, auth.NewHandler(authSvc), g)
	RegisterProfileRoutes(api, rt.Users, g)
	RegisterAdminRoutes(api, rt.Users, g)

	return rt, nil
}

func grantAdmins(users *identity.Service, phones []string, logger *slog.Logger) error {
	for _, phone := range phones {
		user, err := users.GrantRole(context.Background(), phone, identity.RoleAdmin)
		if errors.Is(err, identity.ErrNotFound) {
			logger.Warn("admin phone not registered", slog.String("phone", logging.MaskPhone(phone)))
			continue
		}
		if err != nil {
			return fmt.Errorf("grant admin role: %w", err)
		}
		logger.Info("admin role granted", slog.String("user_id", user.ID))
	}
	return nil
}
