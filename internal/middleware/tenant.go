package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"ghostworks/api/internal/apperr"
	"ghostworks/api/internal/models"
)

type MembershipLookup interface {
	GetMembership(ctx context.Context, tenantID, userID string) (models.Membership, error)
}

// Tenant resolves exactly one workspace for the request from the token
// claim, the :workspace_id path parameter and the X-Workspace-ID header.
// Sources that are present must agree. A tenant named only by path or
// header is checked against the membership store; a token-scoped tenant
// uses the role captured in the token. Mismatches and non-member requests
// are recorded as denied decisions.
func Tenant(memberships MembershipLookup, recorder DecisionRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			AbortWithError(c, errMissingToken)
			return
		}

		tokenRole := ""
		if claims.Role != nil {
			tokenRole = claims.Role.String()
		}

		tenantID := ""
		for _, source := range []string{claims.TenantID, c.Param("workspace_id"), c.GetHeader(workspaceHeader)} {
			if source == "" {
				continue
			}
			if tenantID != "" && tenantID != source {
				denied := Scope{TenantID: tenantID, UserID: claims.UserID}
				recordDenial(c, recorder, denied, tokenRole, apperr.ErrTenantMismatch)
				AbortWithError(c, apperr.ErrTenantMismatch)
				return
			}
			tenantID = source
		}
		if tenantID == "" {
			AbortWithError(c, apperr.ErrNoActiveWorkspace)
			return
		}

		scope := Scope{TenantID: tenantID, UserID: claims.UserID}
		if claims.TenantID != "" {
			if claims.Role == nil {
				AbortWithError(c, apperr.ErrTokenInvalid)
				return
			}
			scope.Role = *claims.Role
		} else {
			m, err := memberships.GetMembership(c.Request.Context(), tenantID, claims.UserID)
			if err != nil {
				recordDenial(c, recorder, scope, "", err)
				AbortWithError(c, err)
				return
			}
			scope.Role = m.Role
		}

		setScope(c, scope)
		c.Next()
	}
}
