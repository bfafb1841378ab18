package middleware

import (
	"context"
	"errors"
	"net/http"

	"identity-service/internal/model"
)

type sessionVerifier interface {
	Authenticate(cookie string) (model.Identity, error)
}

type contextKey string

const identityContextKey contextKey = "session_identity"

// SessionMiddleware guards routes with the session cookie. Sibling services
// mount the same guard with their own copy of the shared secret.
type SessionMiddleware struct {
	verifier sessionVerifier
}

func NewSessionMiddleware(verifier sessionVerifier) *SessionMiddleware {
	return &SessionMiddleware{verifier: verifier}
}

func (m *SessionMiddleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var token string
		if cookie, err := r.Cookie(model.SessionCookieName); err == nil {
			token = cookie.Value
		}

		identity, err := m.verifier.Authenticate(token)
		if err != nil {
			writeSessionError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), identityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(model.Identity)
	return identity, ok
}

func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNoSession):
		writeJSONError(w, http.StatusUnauthorized, "NO_SESSION", "No session token found")
	case errors.Is(err, model.ErrTokenExpired):
		writeJSONError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "Token has expired")
	default:
		writeJSONError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid token")
	}
}
