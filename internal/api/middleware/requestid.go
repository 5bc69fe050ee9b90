package middleware

import (
	"github.com/GriffinCanCode/ConceptCanvas/internal/shared/id"
	"github.com/gin-gonic/gin"
)

// RequestIDHeader carries the request ID in both directions
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// RequestID reuses a well-formed incoming X-Request-ID or generates one,
// stores it in the gin context and echoes it in the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := id.RequestID(c.GetHeader(RequestIDHeader))
		if !validRequestID(rid) {
			rid = id.NewRequestID()
		}
		c.Set(requestIDKey, rid)
		c.Header(RequestIDHeader, rid.String())
		c.Next()
	}
}

// GetRequestID returns the ID set by RequestID, or a fresh one
func GetRequestID(c *gin.Context) id.RequestID {
	if v, ok := c.Get(requestIDKey); ok {
		if rid, ok := v.(id.RequestID); ok {
			return rid
		}
	}
	return id.NewRequestID()
}

func validRequestID(rid id.RequestID) bool {
	prefix, _, err := id.ParsePrefixed(rid.String())
	return err == nil && prefix == id.RequestPrefix
}
