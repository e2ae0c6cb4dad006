// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file guards the webhook ingress. When webhooks are registered with a
// secret token, the platform echoes it back on every delivery in the
// X-Telegram-Bot-Api-Secret-Token header; anything arriving without it is not
// the platform.
package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// secretTokenHeader is the header the platform echoes on each delivery.
const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// SecretToken returns a Gin middleware that rejects webhook deliveries whose
// secret header does not match the configured value.
//
// Behavior:
//   - An empty configured secret disables the check entirely (for local
//     development against a Bot API mock that sends no header).
//   - Comparison is constant-time.
//   - Mismatches are rejected with 403 and a compact JSON body; the request
//     never reaches the queue.
func SecretToken(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		got := c.GetHeader(secretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"request_id": c.Writer.Header().Get("X-Request-ID"),
				"code":       "forbidden",
				"message":    "bad secret token",
			})
			return
		}
		c.Next()
	}
}
