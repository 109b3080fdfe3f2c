package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	errMissingAPIKey = "Missing API key"
	errInvalidAPIKey = "Invalid API key"
)

// APIKeyConfig names the request header carrying the key and the key the
// /v1 routes accept.
type APIKeyConfig struct {
	HeaderName  string
	ValidAPIKey string
}

// APIKeyMiddleware rejects requests whose header does not carry the
// configured key. An empty configured key rejects everything.
func APIKeyMiddleware(config APIKeyConfig) gin.HandlerFunc {
	expected := []byte(config.ValidAPIKey)
	return func(c *gin.Context) {
		presented := strings.TrimSpace(c.GetHeader(config.HeaderName))
		switch {
		case presented == "":
			abortUnauthorized(c, errMissingAPIKey)
		case len(expected) == 0 || subtle.ConstantTimeCompare([]byte(presented), expected) != 1:
			abortUnauthorized(c, errInvalidAPIKey)
		default:
			c.Next()
		}
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.Header("WWW-Authenticate", "ApiKey")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message})
}
