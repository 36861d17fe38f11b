package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/vnshop/authgate/internal/apperror"
	"github.com/vnshop/authgate/internal/logging"
)

func newApp(handler fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{Immutable: true, ErrorHandler: ErrorHandler(logging.Discard())})
	app.Get("/", handler)
	return app
}

func decode(t *testing.T, resp *http.Response) Envelope {
	t.Helper()
	defer resp.Body.Close()
	var env Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

func TestErrorHandlerRendersAppError(t *testing.T) {
	app := newApp(func(c *fiber.Ctx) error {
		return apperror.Validation([]apperror.FieldError{{Field: "phone", Message: "phone is required"}})
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	env := decode(t, resp)
	require.False(t, env.Success)
	require.Equal(t, "phone is required", env.Message)
	require.Len(t, env.Errors, 1)
}

func TestErrorHandlerHidesUnknownErrors(t *testing.T) {
	app := newApp(func(c *fiber.Ctx) error {
		return errors.New("pq: connection reset by peer")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, "internal server error", decode(t, resp).Message)
}

func TestErrorHandlerKeepsFiberStatus(t *testing.T) {
	app := newApp(func(c *fiber.Ctx) error {
		return fiber.NewError(http.StatusNotFound, "Cannot GET /nope")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOKWritesData(t *testing.T) {
	app := newApp(func(c *fiber.Ctx) error {
		return OK(c, "done", fiber.Map{"id": "1"})
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	env := decode(t, resp)
	require.True(t, env.Success)
	require.Equal(t, "done", env.Message)
	require.Equal(t, map[string]any{"id": "1"}, env.Data)
}
