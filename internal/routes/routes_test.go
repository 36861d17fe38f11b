package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vnshop/authgate/internal/apperror"
	"github.com/vnshop/authgate/internal/config"
	"github.com/vnshop/authgate/internal/identity"
	"github.com/vnshop/authgate/internal/logging"
	"github.com/vnshop/authgate/internal/response"
)

type envelope struct {
	Success bool                  `json:"success"`
	Message string                `json:"message"`
	Data    json.RawMessage       `json:"data"`
	Errors  []apperror.FieldError `json:"errors"`
}

type sessionData struct {
	User      identity.Profile `json:"user"`
	Token     string           `json:"token"`
	SessionID string           `json:"sessionId"`
	ExpiresIn int64            `json:"expiresIn"`
}

type testServer struct {
	app     *fiber.App
	rt      *Runtime
	advance func(time.Duration)
}

func testConfig() config.Config {
	return config.Config{
		AppName:            "AuthGate",
		Env:                "test",
		JWTSecret:          "test-secret",
		SessionTokenTTL:    time.Hour,
		ResetTokenTTL:      15 * time.Minute,
		OTPTTL:             5 * time.Minute,
		OTPDigits:          6,
		OTPEcho:            true,
		RegisterRateMax:    3,
		RegisterRateWindow: time.Hour,
		AuthRateMax:        5,
		AuthRateWindow:     15 * time.Minute,
		JanitorInterval:    time.Minute,
	}
}

func newTestServer(t *testing.T, cache *redis.Client) *testServer {
	t.Helper()
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	ts := &testServer{advance: func(d time.Duration) { now = now.Add(d) }}

	logger := logging.Discard()
	ts.app = fiber.New(fiber.Config{Immutable: true, ErrorHandler: response.ErrorHandler(logger)})
	rt, err := Setup(ts.app, Deps{
		Cfg:      testConfig(),
		Cache:    cache,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
		Now:      func() time.Time { return now },
		HashCost: bcrypt.MinCost,
	})
	require.NoError(t, err)
	ts.rt = rt
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env envelope
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp, env
}

func dataAs[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out), string(env.Data))
	return out
}

func registerViaOTP(t *testing.T, ts *testServer, phone string) sessionData {
	t.Helper()
	resp, env := ts.do(t, http.MethodPost, "/api/auth/register-otp", "", fiber.Map{
		"phone": phone, "password": "secret1", "name": "Lan", "email": "",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	code := dataAs[struct {
		Code string `json:"code"`
	}](t, env).Code

	resp, env = ts.do(t, http.MethodPost, "/api/auth/verify-register-otp", "", fiber.Map{"phone": phone, "otp": code})
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	return dataAs[sessionData](t, env)
}

func backends(t *testing.T) map[string]*redis.Client {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return map[string]*redis.Client{"memory": nil, "redis": client}
}

func TestOTPRegistrationThenProfile(t *testing.T) {
	for name, cache := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ts := newTestServer(t, cache)

			resp, env := ts.do(t, http.MethodPost, "/api/auth/register-otp", "", fiber.Map{
				"phone": "0912345678", "password": "secret1", "name": "Lan", "email": "lan@example.com",
			})
			require.Equal(t, http.StatusOK, resp.StatusCode)
			require.True(t, env.Success)
			require.Equal(t, "OTP sent to 0912345678", env.Message)
			code := dataAs[struct {
				Code string `json:"code"`
			}](t, env).Code
			require.Regexp(t, `^[0-9]{6}$`, code)

			resp, env = ts.do(t, http.MethodPost, "/api/auth/verify-register-otp", "", fiber.Map{"phone": "0912345678", "otp": code})
			require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
			session := dataAs[sessionData](t, env)
			require.NotEmpty(t, session.Token)
			require.EqualValues(t, 3600, session.ExpiresIn)

			claims, err := ts.rt.Tokens.VerifySession(session.Token)
			require.NoError(t, err)
			require.Equal(t, "0912345678", claims.Phone)
			require.Equal(t, identity.RoleUser, claims.Role)

			resp, env = ts.do(t, http.MethodGet, "/api/profile", session.Token, nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			profile := dataAs[identity.Profile](t, env)
			require.Equal(t, "Lan", profile.Name)
			require.Equal(t, "0912345678", profile.Phone)
			require.Equal(t, "lan@example.com", profile.Email)

			resp, env = ts.do(t, http.MethodPost, "/api/auth/verify-register-otp", "", fiber.Map{"phone": "0912345678", "otp": code})
			require.Equal(t, http.StatusNotFound, resp.StatusCode)
			require.False(t, env.Success)
		})
	}
}

func TestOTPExpiredOverHTTP(t *testing.T) {
	ts := newTestServer(t, nil)

	_, env := ts.do(t, http.MethodPost, "/api/auth/register-otp", "", fiber.Map{
		"phone": "0912345678", "password": "secret1", "name": "Lan",
	})
	code := dataAs[struct {
		Code string `json:"code"`
	}](t, env).Code

	ts.advance(301 * time.Second)
	resp, env := ts.do(t, http.MethodPost, "/api/auth/verify-register-otp", "", fiber.Map{"phone": "0912345678", "otp": code})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "OTP has expired", env.Message)
}

func TestValidationEnvelope(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, env := ts.do(t, http.MethodPost, "/api/auth/register", "", fiber.Map{
		"phone": "1912345678", "password": "123", "name": "L",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.False(t, env.Success)
	require.Len(t, env.Errors, 3)
	require.Equal(t, env.Errors[0].Message, env.Message)
	require.Equal(t, "phone", env.Errors[0].Field)
}

func TestRegisterRateLimit(t *testing.T) {
	for name, cache := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ts := newTestServer(t, cache)

			phones := []string{"0911111111", "0922222222", "0933333333", "0944444444"}
			for _, phone := range phones[:3] {
				resp, _ := ts.do(t, http.MethodPost, "/api/auth/register", "", fiber.Map{"phone": phone, "password": "secret1", "name": "Lan"})
				require.Equal(t, http.StatusOK, resp.StatusCode)
			}

			resp, env := ts.do(t, http.MethodPost, "/api/auth/register", "", fiber.Map{"phone": phones[3], "password": "secret1", "name": "Lan"})
			require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
			require.False(t, env.Success)
			require.NotEmpty(t, resp.Header.Get(fiber.HeaderRetryAfter))

			// Rejected before any business logic: the phone is still free.
			_, err := ts.rt.Users.GrantRole(context.Background(), phones[3], identity.RoleAdmin)
			require.ErrorIs(t, err, identity.ErrNotFound)

			// The OTP route shares the register policy, login does not.
			resp, _ = ts.do(t, http.MethodPost, "/api/auth/register-otp", "", fiber.Map{"phone": phones[3], "password": "secret1", "name": "Lan"})
			require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
			resp, _ = ts.do(t, http.MethodPost, "/api/auth/login", "", fiber.Map{"phone": phones[0], "password": "secret1"})
			require.Equal(t, http.StatusOK, resp.StatusCode)
		})
	}
}

func TestRegisterRateLimitWindowRolls(t *testing.T) {
	ts := newTestServer(t, nil)

	for i := 0; i < 3; i++ {
		resp, _ := ts.do(t, http.MethodPost, "/api/auth/register", "", fiber.Map{})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	}
	resp, _ := ts.do(t, http.MethodPost, "/api/auth/register", "", fiber.Map{})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	ts.advance(time.Hour)
	resp, _ = ts.do(t, http.MethodPost, "/api/auth/register", "", fiber.Map{"phone": "0911111111", "password": "secret1", "name": "Lan"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoginAndPasswordRecovery(t *testing.T) {
	ts := newTestServer(t, nil)
	registerViaOTP(t, ts, "0900000000")
	registerViaOTP(t, ts, "0911111111")

	resp, env := ts.do(t, http.MethodPost, "/api/auth/login", "", fiber.Map{"phone": "0900000000", "password": "wrong"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid phone number or password", env.Message)

	resp, env = ts.do(t, http.MethodPost, "/api/auth/forgot-password", "", fiber.Map{"phone": "0999999999"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, env = ts.do(t, http.MethodPost, "/api/auth/forgot-password", "", fiber.Map{"phone": "0900000000"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	code := dataAs[struct {
		Code string `json:"code"`
	}](t, env).Code

	resp, env = ts.do(t, http.MethodPost, "/api/auth/verify-forgot-otp", "", fiber.Map{"phone": "0900000000", "otp": code})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resetToken := dataAs[struct {
		ResetToken string `json:"resetToken"`
	}](t, env).ResetToken
	require.NotEmpty(t, resetToken)

	resp, env = ts.do(t, http.MethodPost, "/api/auth/reset-password", "", fiber.Map{"phone": "0911111111", "newPassword": "hijack1", "token": resetToken})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "reset token is invalid", env.Message)

	resp, _ = ts.do(t, http.MethodPost, "/api/auth/reset-password", "", fiber.Map{"phone": "0900000000", "newPassword": "fresh12", "token": resetToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/api/auth/login", "", fiber.Map{"phone": "0900000000", "password": "fresh12"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = ts.do(t, http.MethodPost, "/api/auth/login", "", fiber.Map{"phone": "0911111111", "password": "secret1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthenticatedAccountFlows(t *testing.T) {
	ts := newTestServer(t, nil)
	session := registerViaOTP(t, ts, "0912345678")

	resp, _ := ts.do(t, http.MethodGet, "/api/profile", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, env := ts.do(t, http.MethodGet, "/api/profile", "garbage", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "token is invalid or expired", env.Message)

	resp, env = ts.do(t, http.MethodPut, "/api/profile", session.Token, fiber.Map{"name": "Lan Nguyen", "avatar": "https://cdn.example.com/a.png"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	profile := dataAs[identity.Profile](t, env)
	require.Equal(t, "Lan Nguyen", profile.Name)
	require.Equal(t, "https://cdn.example.com/a.png", profile.Avatar)

	resp, _ = ts.do(t, http.MethodPost, "/api/auth/change-password", session.Token, fiber.Map{"oldPassword": "nope", "newPassword": "secret2"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = ts.do(t, http.MethodPost, "/api/auth/change-password", session.Token, fiber.Map{"oldPassword": "secret1", "newPassword": "secret2"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env = ts.do(t, http.MethodPost, "/api/auth/request-change-contact", session.Token, fiber.Map{"type": "email", "newValue": "lan@example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "OTP sent to lan@example.com", env.Message)
	code := dataAs[struct {
		Code string `json:"code"`
	}](t, env).Code

	resp, env = ts.do(t, http.MethodPost, "/api/auth/verify-change-contact", session.Token, fiber.Map{"otp": code})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, map[string]string{"email": "lan@example.com"}, dataAs[map[string]string](t, env))

	resp, env = ts.do(t, http.MethodGet, "/api/profile", session.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "lan@example.com", dataAs[identity.Profile](t, env).Email)

	resp, env = ts.do(t, http.MethodPost, "/api/auth/request-change-contact", session.Token, fiber.Map{"type": "phone", "newValue": "12"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "newValue", env.Errors[0].Field)
}

func TestAdminRoutes(t *testing.T) {
	ts := newTestServer(t, nil)
	user := registerViaOTP(t, ts, "0911111111")
	registerViaOTP(t, ts, "0922222222")

	resp, _ := ts.do(t, http.MethodGet, "/api/users", user.Token, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, err := ts.rt.Users.GrantRole(context.Background(), "0922222222", identity.RoleAdmin)
	require.NoError(t, err)
	resp, env := ts.do(t, http.MethodPost, "/api/auth/login", "", fiber.Map{"phone": "0922222222", "password": "secret1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	admin := dataAs[sessionData](t, env)
	require.Equal(t, identity.RoleAdmin, admin.User.Role)

	resp, env = ts.do(t, http.MethodGet, "/api/users", admin.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := dataAs[struct {
		Users []identity.Profile `json:"users"`
	}](t, env).Users
	require.Len(t, list, 2)

	resp, _ = ts.do(t, http.MethodDelete, "/api/users/00000000-0000-0000-0000-000000000000", admin.Token, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodDelete, "/api/users/"+user.User.ID, admin.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = ts.do(t, http.MethodGet, "/api/profile", user.Token, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, nil)
	registerViaOTP(t, ts, "0912345678")

	resp, err := ts.app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = ts.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	require.Contains(t, string(raw), `authgate_otp_issued_total{purpose="register"} 1`)
	require.Contains(t, string(raw), `authgate_otp_verifications_total{outcome="success",purpose="register"} 1`)
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, env := ts.do(t, http.MethodGet, "/api/nope", "", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.False(t, env.Success)
}

func TestSetupRequiresStoresOutsideDev(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "production"
	_, err := Setup(fiber.New(), Deps{Cfg: cfg})
	require.Error(t, err)
}
