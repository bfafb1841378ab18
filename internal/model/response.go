package model

import "identity-service/pkg/apierror"

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Detail string                `json:"detail"`
	Code   string                `json:"code,omitempty"`
	Errors []apierror.FieldError `json:"errors,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type SessionResponse struct {
	Message string `json:"message"`
	Role    string `json:"role"`
}

type ProfileResponse struct {
	Message string  `json:"message,omitempty"`
	User    Account `json:"user"`
}

type FederatedLoginResponse struct {
	Message string        `json:"message"`
	User    FederatedUser `json:"user"`
}

type FederatedUser struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	Role    string `json:"role"`
}

type OTPResponse struct {
	Message string `json:"message"`
	OTP     string `json:"otp,omitempty"`
}

type AuthURLResponse struct {
	AuthURL string `json:"auth_url"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Database string `json:"database,omitempty"`
	Cache    string `json:"cache,omitempty"`
}
