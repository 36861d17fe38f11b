package identity

import (
	"fmt"
	"time"
)

// Role is the authorization role carried in session tokens.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is a registered account. Phone is unique across all users.
type User struct {
	ID           string
	Phone        string
	PasswordHash []byte
	Name         string
	Email        string
	Avatar       string
	Role         Role
	CreatedAt    time.Time
}

// Profile is the public view of a user.
type Profile struct {
	ID        string    `json:"id"`
	Phone     string    `json:"phone"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Avatar    string    `json:"avatar,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Profile strips credential material from u.
func (u User) Profile() Profile {
	return Profile{
		ID:        u.ID,
		Phone:     u.Phone,
		Name:      u.Name,
		Email:     u.Email,
		Avatar:    u.Avatar,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

// Principal is the authenticated subject attached to a request.
type Principal struct {
	UserID string
	Phone  string
	Role   Role
}

// Registration carries the fields needed to create a user with an already hashed credential.
type Registration struct {
	Phone        string `json:"phone"`
	PasswordHash []byte `json:"passwordHash"`
	Name         string `json:"name"`
	Email        string `json:"email,omitempty"`
}

// ContactField names a user attribute that can only change after OTP confirmation.
type ContactField string

const (
	ContactPhone ContactField = "phone"
	ContactEmail ContactField = "email"
)

// ParseContactField maps client input onto the closed set of contact fields.
func ParseContactField(s string) (ContactField, error) {
	switch ContactField(s) {
	case ContactPhone:
		return ContactPhone, nil
	case ContactEmail:
		return ContactEmail, nil
	default:
		return "", fmt.Errorf("unknown contact field %q", s)
	}
}
