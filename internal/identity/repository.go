package identity

import (
	"context"
	"errors"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrPhoneTaken = errors.New("phone already registered")
	ErrEmailTaken = errors.New("email already in use")
)

// Repository persists users. Implementations enforce phone and email uniqueness
// themselves so concurrent creates for the same phone cannot both succeed.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByID(ctx context.Context, id string) (User, error)
	FindByPhone(ctx context.Context, phone string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	UpdateProfile(ctx context.Context, id, name, avatar string) (User, error)
	UpdatePassword(ctx context.Context, id string, hash []byte) error
	UpdatePasswordByPhone(ctx context.Context, phone string, hash []byte) error
	UpdatePhone(ctx context.Context, id, phone string) error
	UpdateEmail(ctx context.Context, id, email string) error
	UpdateRole(ctx context.Context, id string, role Role) error
	List(ctx context.Context) ([]User, error)
	Delete(ctx context.Context, id string) error
}
