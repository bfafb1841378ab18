package handler

import (
	"net/http"

	"identity-service/internal/model"
	"identity-service/internal/service"
)

type UserHandler struct {
	service *service.AuthService
	cookies Cookies
}

func NewUserHandler(service *service.AuthService, cookies Cookies) *UserHandler {
	return &UserHandler{service: service, cookies: cookies}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	acct, err := h.service.Me(r.Context(), sessionCookie(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.ProfileResponse{User: acct})
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	var payload model.UpdateProfileRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	acct, session, err := h.service.UpdateProfile(r.Context(), sessionCookie(r), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	if session != nil {
		h.cookies.SetSession(w, session.Token)
	}
	writeJSON(w, http.StatusOK, model.ProfileResponse{Message: "Profile updated successfully", User: acct})
}

func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var payload model.ChangePasswordRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	if err := h.service.ChangePassword(r.Context(), sessionCookie(r), payload.OldPassword, payload.NewPassword); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.MessageResponse{Message: "Password changed successfully"})
}

func (h *UserHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var payload model.ForgotPasswordRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	if err := h.service.ResetPassword(r.Context(), payload.Email, payload.Password); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.MessageResponse{Message: "Password updated successfully"})
}
