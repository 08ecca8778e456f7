package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ghostworks/api/internal/middleware"
	"ghostworks/api/internal/service"
)

const refreshCookie = "refresh_token"

func (h HandlerSet) setSessionCookies(c *gin.Context, pair service.Pair) {
	h.writeCookie(c, middleware.AccessCookie, pair.AccessToken, "/", pair.AccessExpiresAt)
	h.writeCookie(c, refreshCookie, pair.RefreshToken, h.cfg.Cookies.RefreshPath, pair.RefreshExpiresAt)
}

func (h HandlerSet) clearSessionCookies(c *gin.Context) {
	h.writeCookie(c, middleware.AccessCookie, "", "/", time.Unix(0, 0))
	h.writeCookie(c, refreshCookie, "", h.cfg.Cookies.RefreshPath, time.Unix(0, 0))
}

func (h HandlerSet) writeCookie(c *gin.Context, name, value, path string, expires time.Time) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   h.cfg.Cookies.Domain,
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies(),
		SameSite: http.SameSiteLaxMode,
	}
	if value == "" {
		cookie.MaxAge = -1
	} else {
		cookie.MaxAge = int(time.Until(expires).Seconds())
	}
	http.SetCookie(c.Writer, cookie)
}
