package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"ghostworks/api/internal/apperr"
	"ghostworks/api/internal/security"
)

// AccessCookie is the cookie carrying the access token for browser clients.
const AccessCookie = "access_token"

type SessionValidator interface {
	Validate(accessToken string) (*security.Claims, error)
	IsRevoked(ctx context.Context, family string) (bool, error)
}

var errMissingToken = apperr.New(apperr.KindTokenInvalid, "missing access token")

// Authenticate accepts a Bearer token or the access cookie. With
// checkRevocation set, tokens from a revoked lineage are rejected before
// they expire.
func Authenticate(sessions SessionValidator, checkRevocation bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			AbortWithError(c, errMissingToken)
			return
		}

		claims, err := sessions.Validate(token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		if checkRevocation {
			revoked, err := sessions.IsRevoked(c.Request.Context(), claims.Family)
			if err != nil {
				AbortWithError(c, err)
				return
			}
			if revoked {
				AbortWithError(c, apperr.ErrTokenInvalid)
				return
			}
		}

		setClaims(c, claims)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, err := c.Cookie(AccessCookie); err == nil {
		return cookie
	}
	return ""
}
