package auth

import (
	"strings"

	"github.com/vnshop/authgate/internal/apperror"
	"github.com/vnshop/authgate/internal/identity"
	"github.com/vnshop/authgate/internal/validation"
)

// RegisterRequest is the body of both registration routes.
type RegisterRequest struct {
	Phone    string `json:"phone" validate:"required,len=10,phone"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"omitempty,email,max=255"`
}

func (r *RegisterRequest) Normalize() {
	r.Phone = strings.TrimSpace(r.Phone)
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

// VerifyOTPRequest confirms a phone-keyed challenge.
type VerifyOTPRequest struct {
	Phone string `json:"phone"`
	OTP   string `json:"otp"`
}

func (r *VerifyOTPRequest) Normalize() {
	r.Phone = strings.TrimSpace(r.Phone)
	r.OTP = strings.TrimSpace(r.OTP)
}

type LoginRequest struct {
	Phone    string `json:"phone" validate:"required,phone"`
	Password string `json:"password" validate:"required"`
}

func (r *LoginRequest) Normalize() {
	r.Phone = strings.TrimSpace(r.Phone)
}

type ForgotPasswordRequest struct {
	Phone string `json:"phone" validate:"required,phone"`
}

func (r *ForgotPasswordRequest) Normalize() {
	r.Phone = strings.TrimSpace(r.Phone)
}

// ResetPasswordRequest commits a new password with a reset-authorization token.
type ResetPasswordRequest struct {
	Phone       string `json:"phone" validate:"required,phone"`
	NewPassword string `json:"newPassword" validate:"required,min=6"`
	Token       string `json:"token" validate:"required"`
}

func (r *ResetPasswordRequest) Normalize() {
	r.Phone = strings.TrimSpace(r.Phone)
	r.Token = strings.TrimSpace(r.Token)
}

type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6"`
}

// ChangeContactRequest asks to move the phone or email of the caller to NewValue.
type ChangeContactRequest struct {
	Type     string `json:"type" validate:"required,oneof=phone email"`
	NewValue string `json:"newValue" validate:"required"`
}

func (r *ChangeContactRequest) Normalize() {
	r.Type = strings.ToLower(strings.TrimSpace(r.Type))
	r.NewValue = strings.TrimSpace(r.NewValue)
	if r.Type == string(identity.ContactEmail) {
		r.NewValue = strings.ToLower(r.NewValue)
	}
}

// Check validates NewValue against the format of the selected field.
func (r *ChangeContactRequest) Check(v *validation.Validator) []apperror.FieldError {
	tag := "email"
	if r.Type == string(identity.ContactPhone) {
		tag = "phone"
	}
	if fe := v.Var("newValue", r.NewValue, tag); fe != nil {
		return []apperror.FieldError{*fe}
	}
	return nil
}

type VerifyContactRequest struct {
	OTP string `json:"otp"`
}

func (r *VerifyContactRequest) Normalize() {
	r.OTP = strings.TrimSpace(r.OTP)
}
