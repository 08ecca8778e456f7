package middleware

import (
	"github.com/gin-gonic/gin"

	"ghostworks/api/internal/ids"
)

const (
	requestIDHeader    = "X-Request-Id"
	maxRequestIDLength = 128
)

// RequestID tags every request with an id that lands in logs, audit events
// and the response. An inbound id is kept only when trustInbound is set and
// it is printable ASCII without spaces; otherwise a fresh ksuid is issued.
func RequestID(trustInbound bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := ""
		if trustInbound {
			requestID = c.GetHeader(requestIDHeader)
		}
		if !validRequestID(requestID) {
			requestID = ids.New()
		}

		c.Set(requestIDHeader, requestID)
		c.Writer.Header().Set(requestIDHeader, requestID)

		c.Next()
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}
