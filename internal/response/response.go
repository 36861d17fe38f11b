package response

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/vnshop/authgate/internal/apperror"
)

// Envelope is the body shape of every API response.
type Envelope struct {
	Success bool                  `json:"success"`
	Message string                `json:"message"`
	Data    any                   `json:"data,omitempty"`
	Errors  []apperror.FieldError `json:"errors,omitempty"`
}

// OK writes a 200 success envelope.
func OK(c *fiber.Ctx, message string, data any) error {
	return c.Status(http.StatusOK).JSON(Envelope{Success: true, Message: message, Data: data})
}

// Fail writes a failure envelope for err with its mapped status. The returned error
// comes from writing the JSON body.
func Fail(c *fiber.Ctx, err *apperror.Error) error {
	return c.Status(err.Status()).JSON(Envelope{Success: false, Message: err.Message, Errors: err.Fields})
}

// ErrorHandler renders handler errors into the envelope. Unknown errors are logged
// with full detail and surfaced as a generic internal error.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var appErr *apperror.Error
		if errors.As(err, &appErr) {
			if appErr.Kind == apperror.KindInternal {
				logger.Error("request failed", slog.String("path", c.Path()), slog.Any("error", err))
			}
			return Fail(c, appErr)
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(Envelope{Success: false, Message: fiberErr.Message})
		}

		logger.Error("request failed", slog.String("path", c.Path()), slog.Any("error", err))
		return Fail(c, apperror.Internal(err))
	}
}
