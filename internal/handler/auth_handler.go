package handler

import (
	"net/http"

	"identity-service/internal/middleware"
	"identity-service/internal/model"
	"identity-service/internal/service"
)

type AuthHandler struct {
	service *service.AuthService
	cookies Cookies
}

func NewAuthHandler(service *service.AuthService, cookies Cookies) *AuthHandler {
	return &AuthHandler{service: service, cookies: cookies}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload model.RegisterRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	session, err := h.service.Register(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cookies.SetSession(w, session.Token)
	writeJSON(w, http.StatusOK, model.SessionResponse{
		Message: "Registration successful",
		Role:    session.Account.Role,
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload model.LoginRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	session, err := h.service.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cookies.SetSession(w, session.Token)
	writeJSON(w, http.StatusOK, model.SessionResponse{
		Message: "Login successful",
		Role:    session.Account.Role,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(sessionCookie(r)); err != nil {
		writeError(w, err)
		return
	}

	h.cookies.ClearSession(w)
	writeJSON(w, http.StatusOK, model.MessageResponse{Message: "Logout successful"})
}

// Decode returns the identity carried by the session cookie. It is mounted
// behind middleware.SessionMiddleware.
func (h *AuthHandler) Decode(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrNoSession)
		return
	}

	writeJSON(w, http.StatusOK, identity)
}

func (h *AuthHandler) CheckAuthentication(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.IdentityFromContext(r.Context()); !ok {
		writeError(w, model.ErrNoSession)
		return
	}

	writeJSON(w, http.StatusOK, model.MessageResponse{Message: "Authenticated"})
}
