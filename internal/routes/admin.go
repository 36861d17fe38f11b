package routes

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/vnshop/authgate/internal/apperror"
	"github.com/vnshop/authgate/internal/identity"
	"github.com/vnshop/authgate/internal/middleware"
	"github.com/vnshop/authgate/internal/response"
)

// RegisterAdminRoutes wires user administration endpoints for the admin role.
func RegisterAdminRoutes(r fiber.Router, users *identity.Service, g gates) {
	group := r.Group("/users", g.authenticate(), g.authorize(identity.RoleAdmin))

	group.Get("/", func(c *fiber.Ctx) error {
		list, err := users.List(c.UserContext())
		if err != nil {
			return apperror.Internal(err)
		}
		profiles := make([]identity.Profile, 0, len(list))
		for _, u := range list {
			profiles = append(profiles, u.Profile())
		}
		return response.OK(c, "users retrieved", fiber.Map{"users": profiles})
	})

	group.Delete("/:id", func(c *fiber.Ctx) error {
		admin, _ := middleware.CurrentPrincipal(c)
		id := c.Params("id")
		if err := users.Delete(c.UserContext(), id); err != nil {
			return profileError(err)
		}
		g.logger.Info("user deleted", slog.String("admin_id", admin.UserID), slog.String("user_id", id))
		return response.OK(c, "user deleted", nil)
	})
}
