package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vnshop/authgate/internal/identity"
)

func fixedClock(t time.Time) (func() time.Time, func(time.Duration)) {
	now := t
	return func() time.Time { return now }, func(d time.Duration) { now = now.Add(d) }
}

func TestSessionTokenRoundTrip(t *testing.T) {
	svc := NewTokenService("secret")
	user := identity.User{ID: "u-1", Phone: "0912345678", Role: identity.RoleUser}

	token, err := svc.IssueSession(user)
	require.NoError(t, err)

	claims, err := svc.VerifySession(token)
	require.NoError(t, err)
	require.Equal(t, "u-1", claims.UserID)
	require.Equal(t, "0912345678", claims.Phone)
	require.Equal(t, identity.RoleUser, claims.Role)
	require.Equal(t, "u-1", claims.Subject)
}

func TestTokenExpiryIsDistinguished(t *testing.T) {
	now, advance := fixedClock(time.Now())
	svc := NewTokenService("secret", WithTokenClock(now))

	session, err := svc.IssueSession(identity.User{ID: "u-1", Phone: "0912345678", Role: identity.RoleUser})
	require.NoError(t, err)
	reset, err := svc.IssueResetAuth("0912345678")
	require.NoError(t, err)

	advance(16 * time.Minute)
	_, err = svc.VerifyResetAuth(reset)
	require.ErrorIs(t, err, ErrTokenExpired)
	_, err = svc.VerifySession(session)
	require.NoError(t, err)

	advance(45 * time.Minute)
	_, err = svc.VerifySession(session)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenSignatureChecks(t *testing.T) {
	svc := NewTokenService("secret")
	other := NewTokenService("other-secret")

	token, err := other.IssueSession(identity.User{ID: "u-1", Role: identity.RoleAdmin})
	require.NoError(t, err)

	_, err = svc.Verify(token)
	require.ErrorIs(t, err, ErrInvalidSignature)

	_, err = svc.Verify("not-a-token")
	require.ErrorIs(t, err, ErrInvalidSignature)

	parts := strings.Split(token, ".")
	unsigned := parts[0] + "." + parts[1] + "."
	_, err = svc.Verify(unsigned)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestTokenPurposeIsEnforced(t *testing.T) {
	svc := NewTokenService("secret")

	session, err := svc.IssueSession(identity.User{ID: "u-1", Phone: "0912345678", Role: identity.RoleUser})
	require.NoError(t, err)
	reset, err := svc.IssueResetAuth("0912345678")
	require.NoError(t, err)

	_, err = svc.VerifyResetAuth(session)
	require.ErrorIs(t, err, ErrWrongPurpose)
	_, err = svc.VerifySession(reset)
	require.ErrorIs(t, err, ErrWrongPurpose)

	claims, err := svc.VerifyResetAuth(reset)
	require.NoError(t, err)
	require.Equal(t, TokenTypeResetPassword, claims.Type)
	require.Equal(t, "0912345678", claims.Phone)
}

func TestAuthenticateReturnsPrincipal(t *testing.T) {
	svc := NewTokenService("secret")
	token, err := svc.IssueSession(identity.User{ID: "u-9", Phone: "0900000000", Role: identity.RoleAdmin})
	require.NoError(t, err)

	principal, err := svc.Authenticate(token)
	require.NoError(t, err)
	require.Equal(t, identity.Principal{UserID: "u-9", Phone: "0900000000", Role: identity.RoleAdmin}, principal)
}
