package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ghostworks/api/internal/apperr"
)

const unavailableRetryAfter = "5"

var kindStatus = map[apperr.Kind]int{
	apperr.KindInvalidInput:            http.StatusBadRequest,
	apperr.KindInvalidCredentials:      http.StatusUnauthorized,
	apperr.KindTokenExpired:            http.StatusUnauthorized,
	apperr.KindTokenInvalid:            http.StatusUnauthorized,
	apperr.KindTokenReused:             http.StatusUnauthorized,
	apperr.KindTenantMismatch:          http.StatusForbidden,
	apperr.KindInsufficientPermissions: http.StatusForbidden,
	apperr.KindInsufficientPrivilege:   http.StatusForbidden,
	apperr.KindNotAMember:              http.StatusNotFound,
	apperr.KindTenantNotFound:          http.StatusNotFound,
	apperr.KindUserNotFound:            http.StatusNotFound,
	apperr.KindNotFound:                http.StatusNotFound,
	apperr.KindNoActiveWorkspace:       http.StatusConflict,
	apperr.KindSlugTaken:               http.StatusConflict,
	apperr.KindAlreadyMember:           http.StatusConflict,
	apperr.KindDuplicateEmail:          http.StatusConflict,
	apperr.KindWeakPassword:            http.StatusUnprocessableEntity,
	apperr.KindLastOwnerProtected:      http.StatusUnprocessableEntity,
	apperr.KindSelfRemovalByLastOwner:  http.StatusUnprocessableEntity,
	apperr.KindRateLimited:             http.StatusTooManyRequests,
	apperr.KindUnavailable:             http.StatusServiceUnavailable,
}

// StatusFor maps an error to its HTTP status. Unknown errors are 500.
func StatusFor(err error) int {
	if status, ok := kindStatus[apperr.KindOf(apperr.Classify(err))]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// AbortWithError writes the JSON error body for err and stops the chain.
// The error is attached to the gin context so the request logger sees it.
func AbortWithError(c *gin.Context, err error) {
	err = apperr.Classify(err)
	_ = c.Error(err)

	status := StatusFor(err)
	kind := apperr.KindOf(err)

	body := gin.H{"error": kind.Code()}
	var e *apperr.Error
	if status != http.StatusInternalServerError && errors.As(err, &e) {
		body["message"] = e.Message
		if e.Reason != "" {
			body["reason"] = e.Reason
		}
		if e.Required != "" {
			body["required"] = e.Required
			body["actual"] = e.Actual
		}
	} else {
		body["message"] = "internal server error"
	}

	if status == http.StatusServiceUnavailable && c.Writer.Header().Get("Retry-After") == "" {
		c.Header("Retry-After", unavailableRetryAfter)
	}
	c.AbortWithStatusJSON(status, body)
}
