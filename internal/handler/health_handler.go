package handler

import (
	"context"
	"net/http"
	"time"

	"identity-service/internal/model"
)

const healthTimeout = 2 * time.Second

// Pinger reports the reachability of the account and OTP stores.
type Pinger interface {
	Ping(ctx context.Context) (accountsErr error, otpErr error)
}

type HealthHandler struct {
	pinger Pinger
}

func NewHealthHandler(pinger Pinger) *HealthHandler {
	return &HealthHandler{pinger: pinger}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	accountsErr, otpErr := h.pinger.Ping(ctx)

	resp := model.HealthResponse{
		Status:   "healthy",
		Service:  "auth_service",
		Database: componentStatus(accountsErr),
		Cache:    componentStatus(otpErr),
	}

	status := http.StatusOK
	if accountsErr != nil || otpErr != nil {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}

func componentStatus(err error) string {
	if err != nil {
		return "down"
	}
	return "up"
}
