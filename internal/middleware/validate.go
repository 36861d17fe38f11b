package middleware

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/vnshop/authgate/internal/apperror"
	"github.com/vnshop/authgate/internal/validation"
)

var malformedBody = []apperror.FieldError{{Field: "body", Message: "request body must be a JSON object"}}

// Validate parses the JSON body into a T and runs its field rules. On success the
// parsed value is available to handlers through Body.
func Validate[T any](v *validation.Validator, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req, err := parse[T](c)
		if err != nil {
			logger.Warn("validation failed", slog.String("path", c.Path()), slog.String("ip", c.IP()), slog.String("reason", "malformed body"))
			return err
		}
		if fields := v.Struct(req); len(fields) > 0 {
			logger.Warn("validation failed",
				slog.String("path", c.Path()),
				slog.String("ip", c.IP()),
				slog.String("field", fields[0].Field),
				slog.String("reason", fields[0].Message),
			)
			return apperror.Validation(fields)
		}
		c.Locals(bodyKey, req)
		return c.Next()
	}
}

// Body returns the request parsed by Validate, or parses it when the route has no
// validation stage.
func Body[T any](c *fiber.Ctx) (*T, error) {
	if req, ok := c.Locals(bodyKey).(*T); ok {
		return req, nil
	}
	return parse[T](c)
}

func parse[T any](c *fiber.Ctx) (*T, error) {
	req := new(T)
	if len(c.Body()) == 0 {
		return req, nil
	}
	if err := c.BodyParser(req); err != nil {
		return nil, apperror.Validation(malformedBody)
	}
	return req, nil
}
