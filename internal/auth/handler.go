package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vnshop/authgate/internal/apperror"
	"github.com/vnshop/authgate/internal/identity"
	"github.com/vnshop/authgate/internal/middleware"
	"github.com/vnshop/authgate/internal/response"
)

// Handler exposes the orchestrator over HTTP. Request bodies are parsed and
// validated by the gate stages mounted in front of each route.
type Handler struct {
	svc *Service
}

// NewHandler creates a new auth handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(c *fiber.Ctx) error {
	req, err := middleware.Body[RegisterRequest](c)
	if err != nil {
		return err
	}
	session, err := h.svc.Register(c.UserContext(), *req)
	if err != nil {
		return err
	}
	return response.OK(c, "registration successful", session)
}

func (h *Handler) RequestRegistrationOTP(c *fiber.Ctx) error {
	req, err := middleware.Body[RegisterRequest](c)
	if err != nil {
		return err
	}
	delivery, err := h.svc.RequestRegistrationOTP(c.UserContext(), *req)
	if err != nil {
		return err
	}
	return otpSent(c, delivery)
}

func (h *Handler) ConfirmRegistrationOTP(c *fiber.Ctx) error {
	req, err := middleware.Body[VerifyOTPRequest](c)
	if err != nil {
		return err
	}
	req.Normalize()
	session, err := h.svc.ConfirmRegistrationOTP(c.UserContext(), req.Phone, req.OTP)
	if err != nil {
		return err
	}
	return response.OK(c, "registration successful", session)
}

func (h *Handler) Login(c *fiber.Ctx) error {
	req, err := middleware.Body[LoginRequest](c)
	if err != nil {
		return err
	}
	session, err := h.svc.Login(c.UserContext(), req.Phone, req.Password)
	if err != nil {
		return err
	}
	return response.OK(c, "login successful", session)
}

func (h *Handler) ForgotPassword(c *fiber.Ctx) error {
	req, err := middleware.Body[ForgotPasswordRequest](c)
	if err != nil {
		return err
	}
	delivery, err := h.svc.RequestPasswordReset(c.UserContext(), req.Phone)
	if err != nil {
		return err
	}
	return otpSent(c, delivery)
}

func (h *Handler) VerifyForgotOTP(c *fiber.Ctx) error {
	req, err := middleware.Body[VerifyOTPRequest](c)
	if err != nil {
		return err
	}
	req.Normalize()
	grant, err := h.svc.VerifyPasswordResetOTP(c.UserContext(), req.Phone, req.OTP)
	if err != nil {
		return err
	}
	return response.OK(c, "OTP verified", grant)
}

func (h *Handler) ResetPassword(c *fiber.Ctx) error {
	req, err := middleware.Body[ResetPasswordRequest](c)
	if err != nil {
		return err
	}
	if err := h.svc.ResetPassword(c.UserContext(), req.Phone, req.NewPassword, req.Token); err != nil {
		return err
	}
	return response.OK(c, "password has been reset", nil)
}

func (h *Handler) ChangePassword(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	req, err := middleware.Body[ChangePasswordRequest](c)
	if err != nil {
		return err
	}
	if err := h.svc.ChangePassword(c.UserContext(), p, req.OldPassword, req.NewPassword); err != nil {
		return err
	}
	return response.OK(c, "password changed", nil)
}

func (h *Handler) RequestContactChange(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	req, err := middleware.Body[ChangeContactRequest](c)
	if err != nil {
		return err
	}
	field, err := identity.ParseContactField(req.Type)
	if err != nil {
		return apperror.Validation([]apperror.FieldError{{Field: "type", Message: "type must be one of: phone, email"}})
	}
	delivery, err := h.svc.RequestContactChange(c.UserContext(), p, field, req.NewValue)
	if err != nil {
		return err
	}
	return otpSent(c, delivery)
}

func (h *Handler) ConfirmContactChange(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	req, err := middleware.Body[VerifyContactRequest](c)
	if err != nil {
		return err
	}
	req.Normalize()
	change, err := h.svc.ConfirmContactChange(c.UserContext(), p, req.OTP)
	if err != nil {
		return err
	}
	return response.OK(c, string(change.Field)+" updated", fiber.Map{string(change.Field): change.Value})
}

func otpSent(c *fiber.Ctx, delivery OTPDelivery) error {
	return response.OK(c, "OTP sent to "+delivery.Destination, delivery)
}

func principal(c *fiber.Ctx) (identity.Principal, error) {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return identity.Principal{}, apperror.New(apperror.KindUnauthenticated, "authentication token is required")
	}
	return p, nil
}
