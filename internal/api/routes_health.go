package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/loandesk/internal/handlers"
)

func registerHealthRoutes(r gin.IRoutes, handler *handlers.HealthHandler) {
	r.GET("/health", handler.Overall)
	r.GET("/health/live", handler.Liveness)
	r.GET("/health/ready", handler.Readiness)
}
