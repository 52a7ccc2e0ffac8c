package auth

import (
	"net/http"
	"time"
)

const CookieName = "token"

// SetCookie stores token in an httpOnly cookie. Production cookies are cross-site capable.
func SetCookie(w http.ResponseWriter, token string, ttl time.Duration, production bool) {
	c := sessionCookie(production)
	c.Value = token
	c.MaxAge = int(ttl.Seconds())
	http.SetCookie(w, c)
}

func ClearCookie(w http.ResponseWriter, production bool) {
	c := sessionCookie(production)
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	http.SetCookie(w, c)
}

func sessionCookie(production bool) *http.Cookie {
	c := &http.Cookie{Name: CookieName, Path: "/", HttpOnly: true, SameSite: http.SameSiteStrictMode}
	if production {
		c.Secure = true
		c.SameSite = http.SameSiteNoneMode
	}
	return c
}
