package middleware

import (
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/vnshop/authgate/internal/apperror"
	"github.com/vnshop/authgate/internal/identity"
	"github.com/vnshop/authgate/internal/metrics"
)

// Authenticator resolves a bearer token into a principal.
type Authenticator interface {
	Authenticate(token string) (identity.Principal, error)
}

// Authenticate requires a valid session token in the Authorization header and
// attaches its principal to the request.
func Authenticate(authn Authenticator, logger *slog.Logger, rec metrics.Recorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			logger.Warn("authentication failed", slog.String("path", c.Path()), slog.String("ip", c.IP()), slog.String("reason", "missing token"))
			rec.TokenRejected("missing")
			return apperror.New(apperror.KindUnauthenticated, "authentication token is required")
		}

		principal, err := authn.Authenticate(token)
		if err != nil {
			reason := rejectReason(err)
			logger.Warn("authentication failed", slog.String("path", c.Path()), slog.String("ip", c.IP()), slog.String("reason", reason))
			rec.TokenRejected(reason)
			return apperror.Wrap(apperror.KindUnauthenticated, "token is invalid or expired", err)
		}

		c.Locals(principalKey, principal)
		return c.Next()
	}
}

// Authorize admits only principals holding one of roles. It must run after Authenticate.
func Authorize(logger *slog.Logger, roles ...identity.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := CurrentPrincipal(c)
		if !ok {
			return apperror.New(apperror.KindUnauthenticated, "authentication token is required")
		}
		if !slices.Contains(roles, principal.Role) {
			logger.Warn("authorization denied",
				slog.String("path", c.Path()),
				slog.String("user_id", principal.UserID),
				slog.String("role", string(principal.Role)),
			)
			return apperror.New(apperror.KindForbidden, "you do not have permission to perform this action")
		}
		return c.Next()
	}
}

// CurrentPrincipal returns the principal attached by Authenticate.
func CurrentPrincipal(c *fiber.Ctx) (identity.Principal, bool) {
	p, ok := c.Locals(principalKey).(identity.Principal)
	return p, ok
}

func bearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func rejectReason(err error) string {
	var r interface{ Reason() string }
	if errors.As(err, &r) {
		return r.Reason()
	}
	return "invalid"
}
