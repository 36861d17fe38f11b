package ledger

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/vnshop/authgate/internal/identity"
)

var (
	// ErrNotFound means no live challenge of an accepted purpose exists for the subject.
	ErrNotFound = errors.New("challenge not found")
	// ErrExpired means the challenge outlived its TTL. The entry is removed.
	ErrExpired = errors.New("challenge expired")
	// ErrMismatch means the submitted code differs. The entry is kept for retry.
	ErrMismatch = errors.New("challenge code mismatch")
)

const (
	// DefaultTTL is how long an issued code stays valid.
	DefaultTTL = 5 * time.Minute
	// ExpiredRetention keeps expired entries around long enough to report
	// ErrExpired instead of ErrNotFound.
	ExpiredRetention = time.Minute
)

// Purpose tags what a challenge authorises.
type Purpose string

const (
	PurposeRegister      Purpose = "register"
	PurposePasswordReset Purpose = "password_reset"
	PurposeChangePhone   Purpose = "change_phone"
	PurposeChangeEmail   Purpose = "change_email"
)

// ContactPurpose maps a contact field to its challenge purpose.
func ContactPurpose(field identity.ContactField) Purpose {
	if field == identity.ContactEmail {
		return PurposeChangeEmail
	}
	return PurposeChangePhone
}

// ContactChange is the payload of a change_phone/change_email challenge.
type ContactChange struct {
	Field identity.ContactField `json:"field"`
	Value string                `json:"value"`
}

// Payload is the purpose-specific data released on successful verification.
type Payload struct {
	Registration *identity.Registration `json:"registration,omitempty"`
	Contact      *ContactChange         `json:"contact,omitempty"`
}

// Challenge is an outstanding OTP for one subject.
type Challenge struct {
	Subject   string    `json:"subject"`
	Code      string    `json:"code"`
	Purpose   Purpose   `json:"purpose"`
	Payload   Payload   `json:"payload"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Store holds at most one challenge per subject.
type Store interface {
	// Put stores ch under ch.Subject, replacing any previous entry. The entry may be
	// evicted once ttl has elapsed.
	Put(ctx context.Context, ch Challenge, ttl time.Duration) error
	// Update runs fn with exclusive access to the subject's entry (nil when absent).
	// When fn reports drop the entry is deleted; fn's error is returned afterwards.
	Update(ctx context.Context, subject string, fn func(current *Challenge) (drop bool, err error)) error
}

// CodeGenerator produces a fresh numeric code.
type CodeGenerator func() (string, error)

// Ledger issues and verifies OTP challenges.
type Ledger struct {
	store Store
	ttl   time.Duration
	codes CodeGenerator
	now   func() time.Time
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithTTL sets the challenge lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(l *Ledger) { l.ttl = ttl }
}

// WithCodeGenerator replaces the random code source.
func WithCodeGenerator(gen CodeGenerator) Option {
	return func(l *Ledger) { l.codes = gen }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New builds a Ledger on top of store.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{store: store, ttl: DefaultTTL, codes: RandomCode(6), now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TTL reports the configured challenge lifetime.
func (l *Ledger) TTL() time.Duration {
	return l.ttl
}

// Issue creates a challenge for subject, superseding whatever was stored before.
func (l *Ledger) Issue(ctx context.Context, subject string, purpose Purpose, payload Payload) (Challenge, error) {
	code, err := l.codes()
	if err != nil {
		return Challenge{}, fmt.Errorf("generate code: %w", err)
	}
	ch := Challenge{
		Subject:   subject,
		Code:      code,
		Purpose:   purpose,
		Payload:   payload,
		ExpiresAt: l.now().Add(l.ttl),
	}
	if err := l.store.Put(ctx, ch, l.ttl+ExpiredRetention); err != nil {
		return Challenge{}, fmt.Errorf("store challenge: %w", err)
	}
	return ch, nil
}

// Verify consumes the subject's challenge when code matches. When accept is non-empty,
// a challenge with any other purpose is reported as ErrNotFound and left in place.
func (l *Ledger) Verify(ctx context.Context, subject, code string, accept ...Purpose) (Challenge, error) {
	var verified Challenge
	now := l.now()
	err := l.store.Update(ctx, subject, func(current *Challenge) (bool, error) {
		if current == nil || (len(accept) > 0 && !slices.Contains(accept, current.Purpose)) {
			return false, ErrNotFound
		}
		if now.After(current.ExpiresAt) {
			return true, ErrExpired
		}
		if subtle.ConstantTimeCompare([]byte(current.Code), []byte(code)) != 1 {
			return false, ErrMismatch
		}
		verified = *current
		return true, nil
	})
	if err != nil {
		return Challenge{}, err
	}
	return verified, nil
}
