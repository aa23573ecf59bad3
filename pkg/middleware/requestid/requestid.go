// Package requestid tags every request with an identifier that the logging
// middleware and error envelopes correlate on.
package requestid

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Header carries the request ID on both the request and the response.
const Header = "X-Request-ID"

const contextKey = "request_id"

// Middleware propagates a caller-supplied request ID, minting a fresh one
// when the header is absent. The ID is echoed on the response so a client
// can quote it when reporting a failed submission.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(Header)
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(contextKey, id)
		c.Writer.Header().Set(Header, id)

		c.Next()
	}
}

// Value returns the request ID for the current request, or an empty string
// outside the middleware.
func Value(c *gin.Context) string {
	v, _ := c.Get(contextKey)
	id, _ := v.(string)
	return id
}
