package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vnshop/authgate/internal/identity"
)

const (
	// DefaultSessionTTL bounds session tokens.
	DefaultSessionTTL = time.Hour
	// DefaultResetTTL bounds reset-authorization tokens.
	DefaultResetTTL = 15 * time.Minute

	TokenTypeSession       = "session"
	TokenTypeResetPassword = "reset_password"
)

// TokenError is a token rejection. Reason is a stable label for logs and metrics.
type TokenError struct {
	reason string
	msg    string
}

func (e *TokenError) Error() string  { return e.msg }
func (e *TokenError) Reason() string { return e.reason }

var (
	// ErrInvalidSignature covers malformed, unsigned and foreign-key tokens.
	ErrInvalidSignature = &TokenError{reason: "invalid_signature", msg: "token signature invalid"}
	// ErrTokenExpired means the token lifetime elapsed.
	ErrTokenExpired = &TokenError{reason: "expired", msg: "token expired"}
	// ErrWrongPurpose means a valid token was presented where another kind is required.
	ErrWrongPurpose = &TokenError{reason: "wrong_purpose", msg: "token purpose mismatch"}
)

// Claims is the payload of both token kinds. Session tokens carry UserID and Role;
// reset-authorization tokens carry only Phone.
type Claims struct {
	UserID string        `json:"id,omitempty"`
	Phone  string        `json:"phone"`
	Role   identity.Role `json:"role,omitempty"`
	Type   string        `json:"type"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 signed tokens.
type TokenService struct {
	secret     []byte
	issuer     string
	sessionTTL time.Duration
	resetTTL   time.Duration
	now        func() time.Time
}

// TokenOption customises a TokenService.
type TokenOption func(*TokenService)

// WithTTLs overrides the session and reset token lifetimes.
func WithTTLs(session, reset time.Duration) TokenOption {
	return func(s *TokenService) {
		s.sessionTTL = session
		s.resetTTL = reset
	}
}

// WithIssuer sets the iss claim.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) { s.issuer = issuer }
}

// WithTokenClock overrides the time source for issuing and verifying.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

// NewTokenService creates a token service signing with secret.
func NewTokenService(secret string, opts ...TokenOption) *TokenService {
	s := &TokenService{
		secret:     []byte(secret),
		sessionTTL: DefaultSessionTTL,
		resetTTL:   DefaultResetTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SessionTTL reports the session token lifetime.
func (s *TokenService) SessionTTL() time.Duration {
	return s.sessionTTL
}

// ResetTTL reports the reset-authorization token lifetime.
func (s *TokenService) ResetTTL() time.Duration {
	return s.resetTTL
}

// IssueSession mints a session token for user.
func (s *TokenService) IssueSession(user identity.User) (string, error) {
	return s.sign(Claims{
		UserID: user.ID,
		Phone:  user.Phone,
		Role:   user.Role,
		Type:   TokenTypeSession,
	}, user.ID, s.sessionTTL)
}

// IssueResetAuth mints a reset-authorization token bound to phone.
func (s *TokenService) IssueResetAuth(phone string) (string, error) {
	return s.sign(Claims{Phone: phone, Type: TokenTypeResetPassword}, phone, s.resetTTL)
}

func (s *TokenService) sign(claims Claims, subject string, ttl time.Duration) (string, error) {
	now := s.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    s.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and lifetime and returns the claims of either kind.
func (s *TokenService) Verify(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidSignature
	}
	return claims, nil
}

// VerifySession accepts only session tokens.
func (s *TokenService) VerifySession(token string) (*Claims, error) {
	return s.verifyType(token, TokenTypeSession)
}

// VerifyResetAuth accepts only reset-authorization tokens.
func (s *TokenService) VerifyResetAuth(token string) (*Claims, error) {
	return s.verifyType(token, TokenTypeResetPassword)
}

func (s *TokenService) verifyType(token, want string) (*Claims, error) {
	claims, err := s.Verify(token)
	if err != nil {
		return nil, err
	}
	if claims.Type != want {
		return nil, ErrWrongPurpose
	}
	return claims, nil
}

// Authenticate resolves a session token into the request principal.
func (s *TokenService) Authenticate(token string) (identity.Principal, error) {
	claims, err := s.VerifySession(token)
	if err != nil {
		return identity.Principal{}, err
	}
	return identity.Principal{UserID: claims.UserID, Phone: claims.Phone, Role: claims.Role}, nil
}
