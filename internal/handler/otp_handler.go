package handler

import (
	"net/http"

	"identity-service/internal/model"
	"identity-service/internal/service"
)

type OTPHandler struct {
	service    *service.AuthService
	exposeCode bool
}

// NewOTPHandler builds the OTP endpoints. exposeCode echoes the code in the
// response for deployments without a mail collaborator.
func NewOTPHandler(service *service.AuthService, exposeCode bool) *OTPHandler {
	return &OTPHandler{service: service, exposeCode: exposeCode}
}

func (h *OTPHandler) Request(w http.ResponseWriter, r *http.Request) {
	var payload model.OTPRequest
	if email := r.URL.Query().Get("email"); email != "" {
		payload.Email = email
		if err := model.Validate(&payload); err != nil {
			writeError(w, err)
			return
		}
	} else if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	code, err := h.service.RequestOTP(r.Context(), payload.Email)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := model.OTPResponse{Message: "OTP sent successfully"}
	if h.exposeCode {
		resp.OTP = code
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *OTPHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var payload model.VerifyOTPRequest
	query := r.URL.Query()
	if email := query.Get("email"); email != "" {
		payload.Email = email
		payload.OTP = model.FlexString(query.Get("otp"))
		if err := model.Validate(&payload); err != nil {
			writeError(w, err)
			return
		}
	} else if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	if err := h.service.VerifyOTP(r.Context(), payload.Email, payload.OTP.String()); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.MessageResponse{Message: "OTP verified successfully"})
}
