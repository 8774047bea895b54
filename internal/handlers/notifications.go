package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/loandesk/internal/app/scheduler"
	"github.com/charlesng35/loandesk/internal/services"
	appErrors "github.com/charlesng35/loandesk/pkg/errors"
	"github.com/charlesng35/loandesk/pkg/response"
)

// ErrSweepInProgress is reported when a manual sweep overlaps a running one.
var ErrSweepInProgress = appErrors.New("SWEEP_IN_PROGRESS", "a notification sweep is already running", http.StatusConflict)

// SweepRunner triggers the reminder and expiration sweeps on demand.
type SweepRunner interface {
	RunOnce(ctx context.Context) (scheduler.Report, error)
}

// NotificationHandler exposes notification history and manual sweeps.
type NotificationHandler struct {
	notifications *services.NotificationService
	sweeps        SweepRunner
}

// NewNotificationHandler constructs a notification handler. sweeps may be nil
// when the scheduler is disabled; TriggerSweeps then answers 503.
func NewNotificationHandler(notifications *services.NotificationService, sweeps SweepRunner) (*NotificationHandler, error) {
	if notifications == nil {
		return nil, errors.New("notification handler: notification service is required")
	}
	return &NotificationHandler{notifications: notifications, sweeps: sweeps}, nil
}

// ListForLoan returns the notifications recorded for a loan.
func (h *NotificationHandler) ListForLoan(c *gin.Context) {
	items, err := h.notifications.ListForLoan(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, items)
}

// TriggerSweeps runs both sweeps now and reports their outcome.
func (h *NotificationHandler) TriggerSweeps(c *gin.Context) {
	if h.sweeps == nil {
		response.Error(c, appErrors.New("SCHEDULER_DISABLED", "notification sweeps are disabled", http.StatusServiceUnavailable))
		return
	}

	report, err := h.sweeps.RunOnce(requestContext(c))
	switch {
	case errors.Is(err, scheduler.ErrSweepInProgress):
		response.Error(c, ErrSweepInProgress)
	case err != nil:
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
	default:
		response.Success(c, http.StatusOK, report)
	}
}
