package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityHeaders hardens every response for browser clients. HSTS is
// omitted when hstsMaxAge is zero.
func SecurityHeaders(hstsMaxAge time.Duration, csp string) gin.HandlerFunc {
	static := map[string]string{
		"X-Content-Type-Options":       "nosniff",
		"X-Frame-Options":              "DENY",
		"X-XSS-Protection":             "1; mode=block",
		"Referrer-Policy":              "strict-origin-when-cross-origin",
		"Permissions-Policy":           "geolocation=(), microphone=(), camera=(), payment=()",
		"Cross-Origin-Embedder-Policy": "require-corp",
		"Cross-Origin-Opener-Policy":   "same-origin",
		"Cross-Origin-Resource-Policy": "same-origin",
	}
	if csp != "" {
		static["Content-Security-Policy"] = csp
	}
	if hstsMaxAge > 0 {
		static["Strict-Transport-Security"] = "max-age=" + strconv.FormatInt(int64(hstsMaxAge/time.Second), 10) + "; includeSubDomains; preload"
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		for k, v := range static {
			h.Set(k, v)
		}
		h.Del("Server")

		c.Next()
	}
}
