package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned when a phone/password pair or an old password does not match.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Service manages the credential store.
type Service struct {
	repo      Repository
	hashCost  int
	dummyHash []byte
	now       func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithHashCost sets the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new identity service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, hashCost: bcrypt.DefaultCost, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	// Compared against when the phone is unknown so login latency does not reveal registration.
	s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.hashCost)
	return s
}

// HashPassword derives the stored credential for password.
func (s *Service) HashPassword(password string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// EnsurePhoneAvailable fails with ErrPhoneTaken when phone belongs to a user.
func (s *Service) EnsurePhoneAvailable(ctx context.Context, phone string) error {
	_, err := s.repo.FindByPhone(ctx, phone)
	switch {
	case err == nil:
		return ErrPhoneTaken
	case errors.Is(err, ErrNotFound):
		return nil
	default:
		return err
	}
}

// EnsureRegistrable fails when phone, or a non-empty email, already belongs to a user.
func (s *Service) EnsureRegistrable(ctx context.Context, phone, email string) error {
	if err := s.EnsurePhoneAvailable(ctx, phone); err != nil {
		return err
	}
	if email == "" {
		return nil
	}
	return s.EnsureContactAvailable(ctx, "", ContactEmail, email)
}

// Create promotes a registration into a durable user with the user role.
func (s *Service) Create(ctx context.Context, reg Registration) (User, error) {
	user := User{
		ID:           uuid.NewString(),
		Phone:        reg.Phone,
		PasswordHash: reg.PasswordHash,
		Name:         reg.Name,
		Email:        reg.Email,
		Role:         RoleUser,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// Register hashes password and creates the user in one step.
func (s *Service) Register(ctx context.Context, phone, password, name, email string) (User, error) {
	hash, err := s.HashPassword(password)
	if err != nil {
		return User{}, err
	}
	return s.Create(ctx, Registration{Phone: phone, PasswordHash: hash, Name: name, Email: email})
}

// Authenticate verifies a phone/password pair.
func (s *Service) Authenticate(ctx context.Context, phone, password string) (User, error) {
	user, err := s.repo.FindByPhone(ctx, phone)
	if errors.Is(err, ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Profile returns the user by id.
func (s *Service) Profile(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// UpdateProfile overwrites name and avatar.
func (s *Service) UpdateProfile(ctx context.Context, id, name, avatar string) (User, error) {
	return s.repo.UpdateProfile(ctx, id, name, avatar)
}

// ChangePassword replaces the credential after checking the old one.
func (s *Service) ChangePassword(ctx context.Context, id, oldPassword, newPassword string) error {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(oldPassword)); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := s.HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.repo.UpdatePassword(ctx, id, hash)
}

// ResetPassword replaces the credential of the user owning phone.
func (s *Service) ResetPassword(ctx context.Context, phone, newPassword string) error {
	hash, err := s.HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.repo.UpdatePasswordByPhone(ctx, phone, hash)
}

// EnsureContactAvailable fails when value is already used by a user other than id.
func (s *Service) EnsureContactAvailable(ctx context.Context, id string, field ContactField, value string) error {
	var (
		owner User
		err   error
		taken error
	)
	switch field {
	case ContactPhone:
		owner, err = s.repo.FindByPhone(ctx, value)
		taken = ErrPhoneTaken
	case ContactEmail:
		owner, err = s.repo.FindByEmail(ctx, value)
		taken = ErrEmailTaken
	default:
		return fmt.Errorf("unknown contact field %q", field)
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return err
	case owner.ID != id:
		return taken
	default:
		return nil
	}
}

// ApplyContact writes a confirmed contact value onto the user.
func (s *Service) ApplyContact(ctx context.Context, id string, field ContactField, value string) error {
	switch field {
	case ContactPhone:
		return s.repo.UpdatePhone(ctx, id, value)
	case ContactEmail:
		return s.repo.UpdateEmail(ctx, id, value)
	default:
		return fmt.Errorf("unknown contact field %q", field)
	}
}

// GrantRole sets the role of the user owning phone.
func (s *Service) GrantRole(ctx context.Context, phone string, role Role) (User, error) {
	if !role.Valid() {
		return User{}, fmt.Errorf("unknown role %q", role)
	}
	user, err := s.repo.FindByPhone(ctx, phone)
	if err != nil {
		return User{}, err
	}
	if user.Role == role {
		return user, nil
	}
	if err := s.repo.UpdateRole(ctx, user.ID, role); err != nil {
		return User{}, err
	}
	user.Role = role
	return user, nil
}

// List returns every user, newest first.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// Delete removes a user.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}
