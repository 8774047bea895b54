package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/loandesk/internal/handlers"
)

func registerNotificationRoutes(api *gin.RouterGroup, handler *handlers.NotificationHandler) {
	api.GET("/loans/:id/notifications", handler.ListForLoan)
	api.POST("/notifications/sweeps", handler.TriggerSweeps)
}
