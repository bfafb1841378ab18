package model

import "errors"

var (
	// Credential and account errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicateIdentity  = errors.New("email already registered")
	ErrAccountNotFound    = errors.New("account not found")

	// Session token errors
	ErrNoSession    = errors.New("no session token found")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token has expired")

	// OTP errors
	ErrOtpInvalidOrExpired = errors.New("invalid or expired OTP")
	ErrOtpMismatch         = errors.New("invalid OTP")
	ErrResetNotAuthorized  = errors.New("password reset requires a verified OTP")

	// Federated identity errors
	ErrEmailNotVerified = errors.New("email not verified")
	ErrInvalidAssertion = errors.New("invalid identity assertion")

	// Infrastructure
	ErrStoreUnavailable = errors.New("store unavailable")
)
