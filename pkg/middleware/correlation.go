// Package middleware holds the Gin middleware shared by the HTTP facade.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CorrelationIDHeader is the HTTP header carrying the caller's correlation
// id. The facade copies its value onto outbound commands as the bus-side
// x-request-id, so one id follows a request across both transports.
const CorrelationIDHeader = "X-Correlation-ID"

const contextKey = "correlation_id"

// CorrelationID accepts the caller's correlation id or mints one, stores it
// on the request context, and echoes it back on the response.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationIDHeader)
		if id == "" {
			id = uuid.New().String()
		}

		c.Set(contextKey, id)
		c.Header(CorrelationIDHeader, id)

		c.Next()
	}
}

// GetCorrelationID returns the request's correlation id. A fresh id is
// minted when the middleware did not run, so callers always get a non-empty
// value to correlate on.
func GetCorrelationID(c *gin.Context) string {
	if id, ok := c.Get(contextKey); ok {
		return id.(string)
	}
	return uuid.New().String()
}
