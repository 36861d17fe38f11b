package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vnshop/authgate/internal/apperror"
	"github.com/vnshop/authgate/internal/identity"
	"github.com/vnshop/authgate/internal/ledger"
	"github.com/vnshop/authgate/internal/logging"
	"github.com/vnshop/authgate/internal/metrics"
	"github.com/vnshop/authgate/internal/notification"
)

// Session is returned by every flow that signs a user in.
type Session struct {
	User      identity.Profile `json:"user"`
	Token     string           `json:"token"`
	SessionID string           `json:"sessionId"`
	ExpiresIn int64            `json:"expiresIn"`
}

// OTPDelivery describes an issued challenge. Code is only set when codes are echoed
// back to the client.
type OTPDelivery struct {
	Destination string `json:"-"`
	Code        string `json:"code,omitempty"`
	ExpiresIn   int64  `json:"expiresIn"`
}

// ResetGrant carries the reset-authorization token minted after a recovery OTP.
type ResetGrant struct {
	ResetToken string `json:"resetToken"`
	ExpiresIn  int64  `json:"expiresIn"`
}

// Deps wires a Service.
type Deps struct {
	Users    *identity.Service
	Ledger   *ledger.Ledger
	Tokens   *TokenService
	Notifier notification.Notifier
	Metrics  metrics.Recorder
	Logger   *slog.Logger
	// EchoCodes returns issued codes in OTPDelivery.Code.
	EchoCodes bool
	Now       func() time.Time
}

// Service sequences the credential store, the verification ledger and the token
// service into the registration, login, recovery and contact-change protocols.
type Service struct {
	users    *identity.Service
	ledger   *ledger.Ledger
	tokens   *TokenService
	notifier notification.Notifier
	metrics  metrics.Recorder
	logger   *slog.Logger
	echo     bool
	now      func() time.Time
}

// NewService builds the orchestrator. Optional dependencies default to no-ops.
func NewService(d Deps) *Service {
	s := &Service{
		users:    d.Users,
		ledger:   d.Ledger,
		tokens:   d.Tokens,
		notifier: d.Notifier,
		metrics:  d.Metrics,
		logger:   d.Logger,
		echo:     d.EchoCodes,
		now:      d.Now,
	}
	if s.notifier == nil {
		s.notifier = notification.NewLoggerNotifier(nil)
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Register creates the user immediately and signs them in.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (Session, error) {
	if err := s.users.EnsureRegistrable(ctx, req.Phone, req.Email); err != nil {
		return Session{}, userError(err)
	}
	user, err := s.users.Register(ctx, req.Phone, req.Password, req.Name, req.Email)
	if err != nil {
		return Session{}, userError(err)
	}
	s.logger.Info("user registered", slog.String("user_id", user.ID), slog.String("phone", logging.MaskPhone(user.Phone)))
	return s.session(user)
}

// RequestRegistrationOTP parks the registration in the ledger until the phone is confirmed.
func (s *Service) RequestRegistrationOTP(ctx context.Context, req RegisterRequest) (OTPDelivery, error) {
	if err := s.users.EnsureRegistrable(ctx, req.Phone, req.Email); err != nil {
		return OTPDelivery{}, userError(err)
	}
	hash, err := s.users.HashPassword(req.Password)
	if err != nil {
		return OTPDelivery{}, apperror.Internal(err)
	}
	payload := ledger.Payload{Registration: &identity.Registration{
		Phone:        req.Phone,
		PasswordHash: hash,
		Name:         req.Name,
		Email:        req.Email,
	}}
	return s.issue(ctx, req.Phone, req.Phone, ledger.PurposeRegister, payload)
}

// ConfirmRegistrationOTP promotes the pending registration into a user.
func (s *Service) ConfirmRegistrationOTP(ctx context.Context, phone, code string) (Session, error) {
	ch, err := s.verify(ctx, phone, code, ledger.PurposeRegister)
	if err != nil {
		return Session{}, err
	}
	if ch.Payload.Registration == nil {
		return Session{}, apperror.New(apperror.KindValidation, "registration data is missing")
	}
	user, err := s.users.Create(ctx, *ch.Payload.Registration)
	if err != nil {
		return Session{}, userError(err)
	}
	s.logger.Info("user registered", slog.String("user_id", user.ID), slog.String("phone", logging.MaskPhone(user.Phone)), slog.Bool("otp", true))
	return s.session(user)
}

// Login signs in with phone and password.
func (s *Service) Login(ctx context.Context, phone, password string) (Session, error) {
	user, err := s.users.Authenticate(ctx, phone, password)
	if errors.Is(err, identity.ErrInvalidCredentials) {
		s.metrics.LoginAttempt("invalid_credentials")
		s.logger.Warn("login failed", slog.String("phone", logging.MaskPhone(phone)))
		return Session{}, apperror.New(apperror.KindInvalidCredentials, "invalid phone number or password")
	}
	if err != nil {
		s.metrics.LoginAttempt("error")
		return Session{}, apperror.Internal(err)
	}
	s.metrics.LoginAttempt("success")
	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	return s.session(user)
}

// RequestPasswordReset sends a recovery code to a registered phone.
func (s *Service) RequestPasswordReset(ctx context.Context, phone string) (OTPDelivery, error) {
	err := s.users.EnsurePhoneAvailable(ctx, phone)
	switch {
	case err == nil:
		return OTPDelivery{}, apperror.New(apperror.KindNotFound, "phone number is not registered")
	case !errors.Is(err, identity.ErrPhoneTaken):
		return OTPDelivery{}, apperror.Internal(err)
	}
	return s.issue(ctx, phone, phone, ledger.PurposePasswordReset, ledger.Payload{})
}

// VerifyPasswordResetOTP consumes the recovery code and mints a reset-authorization token.
func (s *Service) VerifyPasswordResetOTP(ctx context.Context, phone, code string) (ResetGrant, error) {
	if _, err := s.verify(ctx, phone, code, ledger.PurposePasswordReset); err != nil {
		return ResetGrant{}, err
	}
	token, err := s.tokens.IssueResetAuth(phone)
	if err != nil {
		return ResetGrant{}, apperror.Internal(err)
	}
	return ResetGrant{ResetToken: token, ExpiresIn: int64(s.tokens.ResetTTL().Seconds())}, nil
}

// ResetPassword overwrites the password of phone when token authorises it.
func (s *Service) ResetPassword(ctx context.Context, phone, newPassword, token string) error {
	claims, err := s.tokens.VerifyResetAuth(token)
	if err != nil {
		s.metrics.TokenRejected(tokenReason(err))
		s.logger.Warn("reset token rejected", slog.String("phone", logging.MaskPhone(phone)), slog.Any("error", err))
		return apperror.Wrap(apperror.KindInvalidToken, "reset token is invalid or expired", err)
	}
	if claims.Phone != phone {
		s.metrics.TokenRejected("phone_mismatch")
		s.logger.Warn("reset token rejected", slog.String("phone", logging.MaskPhone(phone)), slog.String("reason", "phone mismatch"))
		return apperror.New(apperror.KindInvalidToken, "reset token is invalid")
	}
	if err := s.users.ResetPassword(ctx, phone, newPassword); err != nil {
		return userError(err)
	}
	s.logger.Info("password reset", slog.String("phone", logging.MaskPhone(phone)))
	return nil
}

// ChangePassword replaces the caller's password after checking the old one.
func (s *Service) ChangePassword(ctx context.Context, p identity.Principal, oldPassword, newPassword string) error {
	err := s.users.ChangePassword(ctx, p.UserID, oldPassword, newPassword)
	if errors.Is(err, identity.ErrInvalidCredentials) {
		return apperror.New(apperror.KindInvalidCredentials, "old password is incorrect")
	}
	if err != nil {
		return userError(err)
	}
	s.logger.Info("password changed", slog.String("user_id", p.UserID))
	return nil
}

// RequestContactChange sends a code to the new contact value of the caller.
func (s *Service) RequestContactChange(ctx context.Context, p identity.Principal, field identity.ContactField, value string) (OTPDelivery, error) {
	if err := s.users.EnsureContactAvailable(ctx, p.UserID, field, value); err != nil {
		return OTPDelivery{}, userError(err)
	}
	payload := ledger.Payload{Contact: &ledger.ContactChange{Field: field, Value: value}}
	return s.issue(ctx, p.UserID, value, ledger.ContactPurpose(field), payload)
}

// ConfirmContactChange applies the contact value confirmed by code.
func (s *Service) ConfirmContactChange(ctx context.Context, p identity.Principal, code string) (ledger.ContactChange, error) {
	ch, err := s.verify(ctx, p.UserID, code, ledger.PurposeChangePhone, ledger.PurposeChangeEmail)
	if err != nil {
		return ledger.ContactChange{}, err
	}
	change := ch.Payload.Contact
	if change == nil {
		return ledger.ContactChange{}, apperror.New(apperror.KindValidation, "contact change data is missing")
	}
	if err := s.users.ApplyContact(ctx, p.UserID, change.Field, change.Value); err != nil {
		return ledger.ContactChange{}, userError(err)
	}
	s.logger.Info("contact changed", slog.String("user_id", p.UserID), slog.String("field", string(change.Field)))
	return *change, nil
}

func (s *Service) session(user identity.User) (Session, error) {
	token, err := s.tokens.IssueSession(user)
	if err != nil {
		return Session{}, apperror.Internal(err)
	}
	return Session{
		User:      user.Profile(),
		Token:     token,
		SessionID: fmt.Sprintf("session_%d", s.now().UnixMilli()),
		ExpiresIn: int64(s.tokens.SessionTTL().Seconds()),
	}, nil
}

func (s *Service) issue(ctx context.Context, subject, destination string, purpose ledger.Purpose, payload ledger.Payload) (OTPDelivery, error) {
	ch, err := s.ledger.Issue(ctx, subject, purpose, payload)
	if err != nil {
		return OTPDelivery{}, apperror.Internal(err)
	}
	s.metrics.OTPIssued(string(purpose))

	msg := notification.Message{
		Kind:        notification.KindOTP,
		Purpose:     string(purpose),
		Destination: destination,
		Body:        fmt.Sprintf("Your verification code is %s", ch.Code),
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		return OTPDelivery{}, apperror.Internal(fmt.Errorf("deliver otp: %w", err))
	}

	out := OTPDelivery{Destination: destination, ExpiresIn: int64(s.ledger.TTL().Seconds())}
	if s.echo {
		out.Code = ch.Code
	}
	return out, nil
}

func (s *Service) verify(ctx context.Context, subject, code string, accept ...ledger.Purpose) (ledger.Challenge, error) {
	ch, err := s.ledger.Verify(ctx, subject, code, accept...)
	purpose := string(accept[0])
	if err == nil {
		purpose = string(ch.Purpose)
	}

	switch {
	case err == nil:
		s.metrics.OTPVerified(purpose, "success")
		return ch, nil
	case errors.Is(err, ledger.ErrNotFound):
		s.metrics.OTPVerified(purpose, "not_found")
		return ledger.Challenge{}, apperror.Wrap(apperror.KindNotFound, "OTP is invalid or has already been used", err)
	case errors.Is(err, ledger.ErrExpired):
		s.metrics.OTPVerified(purpose, "expired")
		return ledger.Challenge{}, apperror.Wrap(apperror.KindChallengeExpired, "OTP has expired", err)
	case errors.Is(err, ledger.ErrMismatch):
		s.metrics.OTPVerified(purpose, "mismatch")
		return ledger.Challenge{}, apperror.Wrap(apperror.KindChallengeMismatch, "OTP is incorrect", err)
	default:
		s.metrics.OTPVerified(purpose, "error")
		return ledger.Challenge{}, apperror.Internal(err)
	}
}

// userError maps credential store failures onto the response taxonomy.
func userError(err error) error {
	switch {
	case errors.Is(err, identity.ErrPhoneTaken):
		return apperror.Wrap(apperror.KindConflict, "phone number is already registered", err)
	case errors.Is(err, identity.ErrEmailTaken):
		return apperror.Wrap(apperror.KindConflict, "email is already in use", err)
	case errors.Is(err, identity.ErrNotFound):
		return apperror.Wrap(apperror.KindNotFound, "user not found", err)
	default:
		return apperror.Internal(err)
	}
}

func tokenReason(err error) string {
	var te *TokenError
	if errors.As(err, &te) {
		return te.Reason()
	}
	return "invalid"
}
