package auth

import (
	"net/http"
	"time"
)

const SessionCookieName = "token"

// CookiePolicy decides the session cookie attributes for the deployment.
type CookiePolicy struct {
	Production bool
	MaxAge     time.Duration
}

func (p CookiePolicy) cookie(value string, maxAge int) *http.Cookie {
	c := &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
	if p.Production {
		c.Secure = true
		c.SameSite = http.SameSiteNoneMode
	}
	return c
}

func SetSessionCookie(w http.ResponseWriter, policy CookiePolicy, token string) {
	maxAge := policy.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultSessionTTL
	}
	http.SetCookie(w, policy.cookie(token, int(maxAge.Seconds())))
}

func ClearSessionCookie(w http.ResponseWriter, policy CookiePolicy) {
	http.SetCookie(w, policy.cookie("", -1))
}
