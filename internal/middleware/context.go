package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"ghostworks/api/internal/models"
	"ghostworks/api/internal/security"
)

const (
	claimsKey = "access_claims"
	scopeKey  = "tenant_scope"
)

// Scope is the single tenant a request acts in, with the caller's role there.
type Scope struct {
	TenantID string
	UserID   string
	Role     models.Role
}

type claimsCtxKey struct{}
type scopeCtxKey struct{}

func setClaims(c *gin.Context, claims *security.Claims) {
	c.Set(claimsKey, claims)
	c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), claimsCtxKey{}, claims))
}

func setScope(c *gin.Context, scope Scope) {
	c.Set(scopeKey, scope)
	c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), scopeCtxKey{}, scope))
}

// ClaimsFrom returns the access token claims stored by Authenticate.
func ClaimsFrom(c *gin.Context) (*security.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*security.Claims)
	return claims, ok && claims != nil
}

// ScopeFrom returns the scope resolved by Tenant.
func ScopeFrom(c *gin.Context) (Scope, bool) {
	v, ok := c.Get(scopeKey)
	if !ok {
		return Scope{}, false
	}
	scope, ok := v.(Scope)
	return scope, ok
}

func ClaimsFromContext(ctx context.Context) (*security.Claims, bool) {
	claims, ok := ctx.Value(claimsCtxKey{}).(*security.Claims)
	return claims, ok && claims != nil
}

func ScopeFromContext(ctx context.Context) (Scope, bool) {
	scope, ok := ctx.Value(scopeCtxKey{}).(Scope)
	return scope, ok
}

func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDHeader)
}
