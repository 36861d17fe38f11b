package routes

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/vnshop/authgate/internal/auth"
	"github.com/vnshop/authgate/internal/identity"
	"github.com/vnshop/authgate/internal/metrics"
	"github.com/vnshop/authgate/internal/middleware"
	"github.com/vnshop/authgate/internal/ratelimit"
	"github.com/vnshop/authgate/internal/validation"
)

// gates builds the request gate stages shared by the route groups.
type gates struct {
	validator *validation.Validator
	limiter   ratelimit.Limiter
	register  ratelimit.Policy
	auth      ratelimit.Policy
	tokens    middleware.Authenticator
	logger    *slog.Logger
	metrics   metrics.Recorder
}

func (g gates) registerLimit() fiber.Handler {
	return middleware.RateLimit(g.limiter, g.register, "too many registration attempts, please try again later", g.logger, g.metrics)
}

func (g gates) authLimit() fiber.Handler {
	return middleware.RateLimit(g.limiter, g.auth, "too many requests, please try again later", g.logger, g.metrics)
}

func (g gates) authenticate() fiber.Handler {
	return middleware.Authenticate(g.tokens, g.logger, g.metrics)
}

func (g gates) authorize(roles ...identity.Role) fiber.Handler {
	return middleware.Authorize(g.logger, roles...)
}

func validate[T any](g gates) fiber.Handler {
	return middleware.Validate[T](g.validator, g.logger)
}

// RegisterAuthRoutes wires authentication endpoints.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, g gates) {
	group := r.Group("/auth")

	group.Post("/register", g.registerLimit(), validate[auth.RegisterRequest](g), h.Register)
	group.Post("/register-otp", g.registerLimit(), validate[auth.RegisterRequest](g), h.RequestRegistrationOTP)
	group.Post("/verify-register-otp", h.ConfirmRegistrationOTP)

	group.Post("/login", g.authLimit(), validate[auth.LoginRequest](g), h.Login)
	group.Post("/forgot-password", g.authLimit(), validate[auth.ForgotPasswordRequest](g), h.ForgotPassword)
	group.Post("/verify-forgot-otp", h.VerifyForgotOTP)
	group.Post("/reset-password", validate[auth.ResetPasswordRequest](g), h.ResetPassword)

	group.Post("/change-password", g.authenticate(), validate[auth.ChangePasswordRequest](g), h.ChangePassword)
	group.Post("/request-change-contact", g.authenticate(), validate[auth.ChangeContactRequest](g), h.RequestContactChange)
	group.Post("/verify-change-contact", g.authenticate(), h.ConfirmContactChange)
}
