package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// WebhookSecret rejects requests whose :secret path segment does not match.
func WebhookSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.Param("secret")
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
