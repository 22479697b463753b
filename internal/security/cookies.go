package security

import (
	"net/http"
	"time"
)

const (
	RefreshCookieName = "refresh_token"
	// RefreshCookiePath scopes the refresh cookie to the refresh endpoint so
	// it is not sent on unrelated requests.
	RefreshCookiePath    = "/api/v1/auth/refresh"
	OAuthStateCookieName = "oauth_state"
	OAuthStateCookiePath = "/api/v1/auth/google"
)

// CookieWriter centralizes the cookie attribute set. Clearing a cookie must
// use the exact same attributes as setting it or most browsers silently keep
// the old value, so set and clear always go through the same builder.
type CookieWriter struct {
	production bool
}

func NewCookieWriter(production bool) *CookieWriter {
	return &CookieWriter{production: production}
}

func (cw *CookieWriter) SetRefreshToken(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, cw.refreshCookie(token, int(ttl.Seconds())))
}

func (cw *CookieWriter) ClearRefreshToken(w http.ResponseWriter) {
	http.SetCookie(w, cw.refreshCookie("", -1))
}

func (cw *CookieWriter) SetOAuthState(w http.ResponseWriter, signedState string, ttl time.Duration) {
	http.SetCookie(w, cw.stateCookie(signedState, int(ttl.Seconds())))
}

func (cw *CookieWriter) ClearOAuthState(w http.ResponseWriter) {
	http.SetCookie(w, cw.stateCookie("", -1))
}

func (cw *CookieWriter) refreshCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     RefreshCookieName,
		Value:    value,
		Path:     RefreshCookiePath,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   cw.production,
		SameSite: cw.sameSite(),
	}
}

func (cw *CookieWriter) stateCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     OAuthStateCookieName,
		Value:    value,
		Path:     OAuthStateCookiePath,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   cw.production,
		SameSite: http.SameSiteLaxMode,
	}
}

func (cw *CookieWriter) sameSite() http.SameSite {
	if cw.production {
		return http.SameSiteStrictMode
	}
	return http.SameSiteLaxMode
}

func GetCookie(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
