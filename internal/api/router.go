package api

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/loandesk/internal/app"
	iauth "github.com/charlesng35/loandesk/internal/auth"
	"github.com/charlesng35/loandesk/internal/handlers"
	"github.com/charlesng35/loandesk/internal/middleware"
	"github.com/charlesng35/loandesk/internal/monitoring"
	"github.com/charlesng35/loandesk/internal/monitoring/checks"
	"github.com/charlesng35/loandesk/internal/services"
)

// Services bundles the domain services the API exposes. Notifications and
// Sweeps are optional; their routes are only mounted when present. When Health
// is nil a manager probing the database alone is used.
type Services struct {
	Loans         *services.LoanService
	Returns       *services.ReturnService
	Notifications *services.NotificationService
	Sweeps        handlers.SweepRunner
	Health        *monitoring.HealthManager
}

// NewRouter builds the Gin engine, wires middleware and registers the loan desk routes.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, svc Services) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())

	if cfg.Monitoring.Health.Enabled {
		manager := svc.Health
		if manager == nil {
			manager = monitoring.NewHealthManager(0)
			manager.AddReadiness(checks.Database(db))
		}
		registerHealthRoutes(r, handlers.NewHealthHandler(manager))
	}
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api")
	api.Use(middleware.Auth(jwt))

	loanHandler, err := handlers.NewLoanHandler(svc.Loans)
	if err != nil {
		return nil, err
	}
	returnHandler, err := handlers.NewReturnHandler(svc.Returns)
	if err != nil {
		return nil, err
	}
	borrowerHandler, err := handlers.NewBorrowerHandler(svc.Loans)
	if err != nil {
		return nil, err
	}

	registerLoanRoutes(api, loanHandler, returnHandler)
	registerBorrowerRoutes(api, borrowerHandler)

	if svc.Notifications != nil {
		notificationHandler, err := handlers.NewNotificationHandler(svc.Notifications, svc.Sweeps)
		if err != nil {
			return nil, err
		}
		registerNotificationRoutes(api, notificationHandler)
	}

	r.NoRoute(middleware.NotFoundHandler)
	r.NoMethod(middleware.MethodNotAllowedHandler)

	return r, nil
}
