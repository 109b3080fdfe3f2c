package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailsync/internal/utils"
)

const testHeader = "X-MAILSYNC-API-KEY"

func keyRouter(validKey string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(APIKeyMiddleware(APIKeyConfig{HeaderName: testHeader, ValidAPIKey: validKey}))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func request(r *gin.Engine, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if key != "" {
		req.Header.Set(testHeader, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAPIKeyMiddleware(t *testing.T) {
	r := keyRouter("s3cret")

	tests := []struct {
		name    string
		key     string
		status  int
		message string
	}{
		{name: "missing", key: "", status: http.StatusUnauthorized, message: errMissingAPIKey},
		{name: "blank", key: "   ", status: http.StatusUnauthorized, message: errMissingAPIKey},
		{name: "prefix of the key", key: "s3c", status: http.StatusUnauthorized, message: errInvalidAPIKey},
		{name: "key with suffix", key: "s3cret-extra", status: http.StatusUnauthorized, message: errInvalidAPIKey},
		{name: "valid", key: "s3cret", status: http.StatusOK},
		{name: "valid with padding", key: " s3cret ", status: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := request(r, "/ping", tt.key)
			require.Equal(t, tt.status, w.Code)
			if tt.message != "" {
				assert.JSONEq(t, `{"error":"`+tt.message+`"}`, w.Body.String())
				assert.Equal(t, "ApiKey", w.Header().Get("WWW-Authenticate"))
			} else {
				assert.Equal(t, "pong", w.Body.String())
			}
		})
	}
}

func TestAPIKeyMiddleware_UnconfiguredKeyRejectsEverything(t *testing.T) {
	r := keyRouter("")

	w := request(r, "/ping", "anything")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), errInvalidAPIKey)
}

func TestCustomContextMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CustomContextMiddleware("mailsync"))

	var got utils.CustomContext
	capture := func(c *gin.Context) {
		got = *utils.GetContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	}
	r.GET("/sync/:accountId", capture)
	r.GET("/sync", capture)

	request(r, "/sync/acc-1", "")
	assert.Equal(t, utils.CustomContext{AppSource: "mailsync", AccountId: "acc-1"}, got)

	request(r, "/sync", "")
	assert.Equal(t, utils.CustomContext{AppSource: "mailsync"}, got)
}
