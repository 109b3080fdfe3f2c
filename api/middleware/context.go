package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/customeros/mailsync/internal/utils"
)

// CustomContextMiddleware stamps the app source and the :accountId path
// parameter, when the route has one, into the request context. Sync and
// message handlers read the account back with utils.GetAccountIdFromContext.
func CustomContextMiddleware(appSource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(utils.WithCustomContextFromGinRequest(c, appSource))
		c.Next()
	}
}
