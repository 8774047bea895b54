package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/loandesk/internal/handlers"
)

func registerBorrowerRoutes(api *gin.RouterGroup, handler *handlers.BorrowerHandler) {
	api.GET("/borrowers/:externalId/loans", handler.Loans)
}
