package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"ghostworks/api/internal/apperr"
	"ghostworks/api/internal/ids"
	"ghostworks/api/internal/models"
)

type DecisionRecorder interface {
	Record(ctx context.Context, ev models.AuditEvent)
}

// Refusals worth a forensic record. Infrastructure and input errors are not
// decisions and stay out of the audit trail.
var denialKinds = map[apperr.Kind]bool{
	apperr.KindTenantMismatch:          true,
	apperr.KindNotAMember:              true,
	apperr.KindInsufficientPermissions: true,
	apperr.KindInsufficientPrivilege:   true,
	apperr.KindLastOwnerProtected:      true,
	apperr.KindSelfRemovalByLastOwner:  true,
}

func decisionEvent(c *gin.Context, scope Scope, required, actual string, outcome models.AuditOutcome) models.AuditEvent {
	return models.AuditEvent{
		ID:         ids.NewUUID().String(),
		RequestID:  RequestIDFrom(c),
		UserID:     scope.UserID,
		TenantID:   scope.TenantID,
		Method:     c.Request.Method,
		Route:      c.FullPath(),
		Required:   required,
		Actual:     actual,
		Outcome:    outcome,
		OccurredAt: time.Now().UTC(),
	}
}

// AbortWithDenial writes err like AbortWithError. When err refuses the
// caller on authorization grounds it is also recorded as a denied decision.
// Past the gate NotAMember names a missing target, not a refusal.
func AbortWithDenial(c *gin.Context, recorder DecisionRecorder, scope Scope, err error) {
	if apperr.KindOf(err) != apperr.KindNotAMember {
		recordDenial(c, recorder, scope, scope.Role.String(), err)
	}
	AbortWithError(c, err)
}

func recordDenial(c *gin.Context, recorder DecisionRecorder, scope Scope, actual string, err error) {
	kind := apperr.KindOf(err)
	if recorder == nil || !denialKinds[kind] {
		return
	}
	ev := decisionEvent(c, scope, "", actual, models.AuditDenied)
	ev.Reason = kind.Code()
	recorder.Record(c.Request.Context(), ev)
}

// RequireRole admits requests whose scope role is at least min. Every
// decision is recorded.
func RequireRole(min models.Role, recorder DecisionRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		scope, ok := ScopeFrom(c)
		if !ok {
			AbortWithError(c, apperr.ErrNoActiveWorkspace)
			return
		}

		if !scope.Role.AtLeast(min) {
			ev := decisionEvent(c, scope, min.String(), scope.Role.String(), models.AuditDenied)
			ev.Reason = apperr.KindInsufficientPermissions.Code()
			recorder.Record(c.Request.Context(), ev)
			AbortWithError(c, apperr.InsufficientPermissions(min.String(), scope.Role.String()))
			return
		}

		recorder.Record(c.Request.Context(), decisionEvent(c, scope, min.String(), scope.Role.String(), models.AuditGranted))
		c.Next()
	}
}
