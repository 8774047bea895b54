package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/loandesk/internal/handlers"
)

func registerLoanRoutes(api *gin.RouterGroup, loans *handlers.LoanHandler, returns *handlers.ReturnHandler) {
	group := api.Group("/loans")
	{
		group.POST("", loans.Create)
		group.GET("/active", loans.Active)
		group.GET("/delivered", returns.Delivered)
		group.GET("/overdue", returns.Overdue)

		group.GET("/:id", loans.Get)
		group.POST("/:id/approve", loans.Approve)
		group.POST("/:id/deliver", loans.Deliver)
		group.POST("/:id/cancel", loans.Cancel)
		group.POST("/:id/expire", loans.Expire)

		group.GET("/:id/return", returns.Preview)
		group.POST("/:id/return", returns.Process)
	}
}
