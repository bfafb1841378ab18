package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// FlexString accepts either a JSON string or a JSON number.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string {
	return string(f)
}

type RegisterRequest struct {
	Email    string     `json:"email" validate:"required,email,max=254"`
	Password string     `json:"password" validate:"required,min=6,maxbytes=72"`
	Name     string     `json:"name" validate:"omitempty,max=120"`
	Phone    FlexString `json:"phone" validate:"omitempty,max=32"`
	Location string     `json:"location" validate:"omitempty,max=120"`
	Bio      string     `json:"bio" validate:"omitempty,max=1000"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ForgotPasswordRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,maxbytes=72"`
}

// ChangePasswordRequest keeps the legacy email field; the account is always
// taken from the session.
type ChangePasswordRequest struct {
	Email       string `json:"email" validate:"omitempty,email"`
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6,maxbytes=72"`
}

type UpdateProfileRequest struct {
	Name     *string     `json:"name" validate:"omitempty,max=120"`
	Email    *string     `json:"email" validate:"omitempty,email,max=254"`
	Phone    *FlexString `json:"phone" validate:"omitempty,max=32"`
	Location *string     `json:"location" validate:"omitempty,max=120"`
	Bio      *string     `json:"bio" validate:"omitempty,max=1000"`
	Password *string     `json:"password" validate:"omitempty,min=6,maxbytes=72"`
}

// Normalize drops empty identity fields so they read as absent.
func (r *UpdateProfileRequest) Normalize() {
	if r.Email != nil {
		email := NormalizeEmail(*r.Email)
		if email == "" {
			r.Email = nil
		} else {
			r.Email = &email
		}
	}
	if r.Password != nil && *r.Password == "" {
		r.Password = nil
	}
}

func (r UpdateProfileRequest) IsEmpty() bool {
	return r.Name == nil && r.Email == nil && r.Phone == nil &&
		r.Location == nil && r.Bio == nil && r.Password == nil
}

type GoogleTokenRequest struct {
	Credential string `json:"credential" validate:"required"`
}

type OTPRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type VerifyOTPRequest struct {
	Email string     `json:"email" validate:"required,email"`
	OTP   FlexString `json:"otp" validate:"required,numeric,len=6"`
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
