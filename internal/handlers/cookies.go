package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// setRefreshCookie stores the refresh token in an HttpOnly cookie scoped to
// the auth routes. Production cookies are Secure and SameSite=Strict.
func (h HandlerSet) setRefreshCookie(c *gin.Context, token string, expires time.Time) {
	http.SetCookie(c.Writer, h.refreshCookie(token, expires, int(time.Until(expires).Seconds())))
}

func (h HandlerSet) clearRefreshCookie(c *gin.Context) {
	http.SetCookie(c.Writer, h.refreshCookie("", time.Unix(0, 0), -1))
}

func (h HandlerSet) refreshCookie(value string, expires time.Time, maxAge int) *http.Cookie {
	prod := h.cfg.IsProduction()
	cookie := &http.Cookie{
		Name:     h.cfg.Cookie.Name,
		Value:    value,
		Path:     h.cfg.Cookie.Path,
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   prod,
		SameSite: http.SameSiteLaxMode,
	}
	if prod {
		cookie.SameSite = http.SameSiteStrictMode
		cookie.Domain = h.cfg.Cookie.Domain
	}
	return cookie
}

func (h HandlerSet) refreshTokenFromCookie(c *gin.Context) string {
	token, err := c.Cookie(h.cfg.Cookie.Name)
	if err != nil {
		return ""
	}
	return token
}
