package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"identity-service/internal/model"
	"identity-service/pkg/apierror"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError classifies err once and writes {"detail","code"}.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := model.ErrorResponse{
		Code:   "INTERNAL_ERROR",
		Detail: "Unexpected server error",
	}

	var validationErr *apierror.ValidationError
	var apiErr *apierror.APIError

	switch {
	case errors.As(err, &validationErr):
		status = http.StatusBadRequest
		body.Code = "VALIDATION_ERROR"
		body.Detail = validationErr.Message
		body.Errors = validationErr.Fields
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatus
		body.Code = apiErr.Code
		body.Detail = apiErr.Message
	case errors.Is(err, model.ErrInvalidCredentials):
		status = http.StatusBadRequest
		body.Code = "INVALID_CREDENTIALS"
		body.Detail = "Invalid credentials"
	case errors.Is(err, model.ErrDuplicateIdentity):
		status = http.StatusBadRequest
		body.Code = "DUPLICATE_IDENTITY"
		body.Detail = "Email already registered"
	case errors.Is(err, model.ErrAccountNotFound):
		status = http.StatusNotFound
		body.Code = "ACCOUNT_NOT_FOUND"
		body.Detail = "User not found"
	case errors.Is(err, model.ErrNoSession):
		status = http.StatusUnauthorized
		body.Code = "NO_SESSION"
		body.Detail = "No session token found"
	case errors.Is(err, model.ErrTokenExpired):
		status = http.StatusUnauthorized
		body.Code = "TOKEN_EXPIRED"
		body.Detail = "Token has expired"
	case errors.Is(err, model.ErrInvalidToken):
		status = http.StatusUnauthorized
		body.Code = "INVALID_TOKEN"
		body.Detail = "Invalid token"
	case errors.Is(err, model.ErrOtpInvalidOrExpired):
		status = http.StatusBadRequest
		body.Code = "OTP_INVALID_OR_EXPIRED"
		body.Detail = "Invalid or expired OTP"
	case errors.Is(err, model.ErrOtpMismatch):
		status = http.StatusBadRequest
		body.Code = "OTP_MISMATCH"
		body.Detail = "Invalid OTP"
	case errors.Is(err, model.ErrResetNotAuthorized):
		status = http.StatusForbidden
		body.Code = "RESET_NOT_AUTHORIZED"
		body.Detail = "Password reset requires a verified OTP"
	case errors.Is(err, model.ErrEmailNotVerified):
		status = http.StatusUnauthorized
		body.Code = "EMAIL_NOT_VERIFIED"
		body.Detail = "Email not verified"
	case errors.Is(err, model.ErrInvalidAssertion):
		status = http.StatusUnauthorized
		body.Code = "INVALID_ASSERTION"
		body.Detail = "Invalid Google token"
	case errors.Is(err, model.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
		body.Code = "STORE_UNAVAILABLE"
		body.Detail = "Service temporarily unavailable"
		slog.Error("store unavailable", "error", err.Error())
	default:
		slog.Error("unhandled error in writeError", "error", err.Error())
	}

	writeJSON(w, status, body)
}

// decodeJSON reads a request body into dst and validates it.
func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()

	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apierror.New("BAD_REQUEST", "request body is required", "", http.StatusBadRequest)
		}
		return apierror.New("BAD_REQUEST", "invalid JSON body", err.Error(), http.StatusBadRequest)
	}

	return model.Validate(dst)
}
