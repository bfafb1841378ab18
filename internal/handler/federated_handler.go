package handler

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/google/uuid"

	"identity-service/internal/model"
	"identity-service/internal/service"
	"identity-service/pkg/apierror"
)

// IdentityProvider is the federated provider surface used by the handlers.
type IdentityProvider interface {
	VerifyIDToken(ctx context.Context, rawIDToken string) (model.Assertion, error)
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (model.Assertion, error)
}

type FederatedHandler struct {
	service     *service.AuthService
	provider    IdentityProvider
	cookies     Cookies
	redirectURL string
}

// NewFederatedHandler wires Google login. A nil provider makes every route
// report that federated login is not configured.
func NewFederatedHandler(service *service.AuthService, provider IdentityProvider, cookies Cookies, frontendURL string) *FederatedHandler {
	return &FederatedHandler{
		service:     service,
		provider:    provider,
		cookies:     cookies,
		redirectURL: frontendURL + "/user/dashboard",
	}
}

var errFederationDisabled = apierror.New("FEDERATION_DISABLED", "Google login is not configured", "", http.StatusServiceUnavailable)

func (h *FederatedHandler) Token(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		writeError(w, errFederationDisabled)
		return
	}

	var payload model.GoogleTokenRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	assertion, err := h.provider.VerifyIDToken(r.Context(), payload.Credential)
	if err != nil {
		writeError(w, err)
		return
	}

	session, err := h.service.FederatedLogin(r.Context(), assertion)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cookies.SetSession(w, session.Token)
	writeJSON(w, http.StatusOK, model.FederatedLoginResponse{
		Message: "Google login successful",
		User: model.FederatedUser{
			ID:      session.Account.ID,
			Email:   session.Account.Email,
			Name:    session.Account.Name,
			Picture: session.Account.Picture,
			Role:    session.Account.Role,
		},
	})
}

func (h *FederatedHandler) AuthURL(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		writeError(w, errFederationDisabled)
		return
	}

	writeJSON(w, http.StatusOK, model.AuthURLResponse{AuthURL: h.startFlow(w)})
}

func (h *FederatedHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		writeError(w, errFederationDisabled)
		return
	}

	http.Redirect(w, r, h.startFlow(w), http.StatusTemporaryRedirect)
}

// Callback finishes the redirect flow. The state parameter must match the
// cookie set when the flow started.
func (h *FederatedHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		writeError(w, errFederationDisabled)
		return
	}

	query := r.URL.Query()
	if reason := query.Get("error"); reason != "" {
		writeError(w, apierror.New("FEDERATION_DENIED", "Google login was cancelled", reason, http.StatusBadRequest))
		return
	}

	state := query.Get("state")
	stateCookie, err := r.Cookie(oauthStateName)
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(state), []byte(stateCookie.Value)) != 1 {
		writeError(w, apierror.New("INVALID_STATE", "Invalid OAuth state", "", http.StatusBadRequest))
		return
	}
	h.cookies.ClearState(w)

	code := query.Get("code")
	if code == "" {
		writeError(w, apierror.Validation("validation failed", apierror.FieldError{Field: "code", Message: "is required"}))
		return
	}

	assertion, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}

	session, err := h.service.FederatedLogin(r.Context(), assertion)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cookies.SetSession(w, session.Token)
	http.Redirect(w, r, h.redirectURL, http.StatusTemporaryRedirect)
}

func (h *FederatedHandler) startFlow(w http.ResponseWriter) string {
	state := uuid.NewString()
	h.cookies.SetState(w, state)
	return h.provider.AuthCodeURL(state)
}
