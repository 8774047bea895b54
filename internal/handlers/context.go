package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/loandesk/internal/middleware"
)

// requestContext carries request cancellation into the services. Handlers
// invoked directly in tests may have no request attached.
func requestContext(c *gin.Context) context.Context {
	if c != nil && c.Request != nil {
		return c.Request.Context()
	}
	return context.Background()
}

// actingOperator returns the desk operator authenticated by the bearer token.
func actingOperator(c *gin.Context) (string, bool) {
	actor := strings.TrimSpace(c.GetString(middleware.CtxUserIDKey))
	return actor, actor != ""
}
