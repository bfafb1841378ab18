package handler

import (
	"net/http"
	"time"

	"identity-service/internal/model"
)

const (
	sessionMaxAge  = 3600
	oauthStateName = "oauth_state"
	oauthStateTTL  = 10 * time.Minute
)

// Cookies writes the session and OAuth state cookies with one attribute set.
// Secure is only switched off for local development over plain HTTP.
type Cookies struct {
	Secure bool
}

func (c Cookies) SetSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, c.build(model.SessionCookieName, token, sessionMaxAge))
}

func (c Cookies) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, c.build(model.SessionCookieName, "", -1))
}

func (c Cookies) SetState(w http.ResponseWriter, state string) {
	http.SetCookie(w, c.build(oauthStateName, state, int(oauthStateTTL.Seconds())))
}

func (c Cookies) ClearState(w http.ResponseWriter) {
	http.SetCookie(w, c.build(oauthStateName, "", -1))
}

func (c Cookies) build(name string, value string, maxAge int) *http.Cookie {
	sameSite := http.SameSiteNoneMode
	if !c.Secure {
		sameSite = http.SameSiteLaxMode
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: sameSite,
	}
}

func sessionCookie(r *http.Request) string {
	cookie, err := r.Cookie(model.SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
