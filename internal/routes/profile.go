package routes

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/vnshop/authgate/internal/apperror"
	"github.com/vnshop/authgate/internal/identity"
	"github.com/vnshop/authgate/internal/middleware"
	"github.com/vnshop/authgate/internal/response"
)

// UpdateProfileRequest replaces the display fields of the caller.
type UpdateProfileRequest struct {
	Name   string `json:"name" validate:"required,min=2,max=100"`
	Avatar string `json:"avatar" validate:"omitempty,max=2048"`
}

func (r *UpdateProfileRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Avatar = strings.TrimSpace(r.Avatar)
}

// RegisterProfileRoutes wires the caller's own profile endpoints.
func RegisterProfileRoutes(r fiber.Router, users *identity.Service, g gates) {
	group := r.Group("/profile", g.authenticate())

	group.Get("/", func(c *fiber.Ctx) error {
		p, _ := middleware.CurrentPrincipal(c)
		user, err := users.Profile(c.UserContext(), p.UserID)
		if err != nil {
			return profileError(err)
		}
		return response.OK(c, "profile retrieved", user.Profile())
	})

	group.Put("/", validate[UpdateProfileRequest](g), func(c *fiber.Ctx) error {
		p, _ := middleware.CurrentPrincipal(c)
		req, err := middleware.Body[UpdateProfileRequest](c)
		if err != nil {
			return err
		}
		user, err := users.UpdateProfile(c.UserContext(), p.UserID, req.Name, req.Avatar)
		if err != nil {
			return profileError(err)
		}
		return response.OK(c, "profile updated", user.Profile())
	})
}

func profileError(err error) error {
	if errors.Is(err, identity.ErrNotFound) {
		return apperror.Wrap(apperror.KindNotFound, "user not found", err)
	}
	return apperror.Internal(err)
}
