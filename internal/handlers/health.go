package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/loandesk/internal/monitoring"
	"github.com/charlesng35/loandesk/pkg/response"
)

// HealthHandler exposes liveness and readiness reports.
type HealthHandler struct {
	manager *monitoring.HealthManager
}

func NewHealthHandler(manager *monitoring.HealthManager) *HealthHandler {
	if manager == nil {
		manager = monitoring.NewHealthManager(0)
	}
	return &HealthHandler{manager: manager}
}

// Overall runs every registered probe.
func (h *HealthHandler) Overall(c *gin.Context) {
	h.write(c, h.manager.Evaluate)
}

func (h *HealthHandler) Liveness(c *gin.Context) {
	h.write(c, h.manager.EvaluateLiveness)
}

func (h *HealthHandler) Readiness(c *gin.Context) {
	h.write(c, h.manager.EvaluateReadiness)
}

// Degraded reports still answer 200; only a failed probe turns the endpoint 503.
func (h *HealthHandler) write(c *gin.Context, evaluate func(context.Context) monitoring.HealthReport) {
	report := evaluate(requestContext(c))
	if report.Status != monitoring.StatusDown {
		response.Success(c, http.StatusOK, report)
		return
	}
	c.JSON(http.StatusServiceUnavailable, response.Response{
		Success: false,
		Data:    report,
		Error:   &response.ErrorInfo{Code: "SERVICE_UNAVAILABLE", Message: "one or more health checks failed"},
	})
}
