package middleware

import (
	"log/slog"
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/vnshop/authgate/internal/apperror"
	"github.com/vnshop/authgate/internal/metrics"
	"github.com/vnshop/authgate/internal/ratelimit"
)

// RateLimit admits at most policy.Max requests per window from one client IP.
// Limiter failures are logged and the request is let through.
func RateLimit(limiter ratelimit.Limiter, policy ratelimit.Policy, message string, logger *slog.Logger, rec metrics.Recorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		decision, err := limiter.Allow(c.UserContext(), policy, c.IP())
		if err != nil {
			logger.Warn("rate limiter unavailable", slog.String("policy", policy.Name), slog.Any("error", err))
			return c.Next()
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(policy.Max))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if decision.Allowed {
			return c.Next()
		}

		rec.RateLimited(policy.Name)
		logger.Warn("rate limit exceeded",
			slog.String("policy", policy.Name),
			slog.String("path", c.Path()),
			slog.String("ip", c.IP()),
		)
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(decision.RetryAfter.Seconds()))))
		return apperror.New(apperror.KindRateLimited, message)
	}
}
