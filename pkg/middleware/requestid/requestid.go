// Package requestid tags every request with a correlation id, so a capture
// frame and the attendance record it produced can be tied together in the
// logs.
package requestid

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Header carries the request id to and from clients.
const Header = "X-Request-ID"

const contextKey = "requestID"

// Middleware reuses the caller's request id when one is supplied (the
// capture UI sends one per frame) and mints a fresh one otherwise. The id
// is echoed back on the response.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(Header)
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(contextKey, id)
		c.Header(Header, id)
		c.Next()
	}
}

// Value returns the request id for the current request, or "" when the
// middleware did not run.
func Value(c *gin.Context) string {
	return c.GetString(contextKey)
}
