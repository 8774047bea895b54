package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/loandesk/internal/api"
	"github.com/charlesng35/loandesk/internal/app"
	"github.com/charlesng35/loandesk/internal/app/scheduler"
	iauth "github.com/charlesng35/loandesk/internal/auth"
	sharedtestutil "github.com/charlesng35/loandesk/internal/database/testutil"
	"github.com/charlesng35/loandesk/internal/monitoring"
	"github.com/charlesng35/loandesk/internal/monitoring/checks"
	"github.com/charlesng35/loandesk/internal/notifications"
	"github.com/charlesng35/loandesk/internal/services"
	"github.com/charlesng35/loandesk/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T         *testing.T
	DB        *gorm.DB
	Router    *gin.Engine
	JWT       *iauth.JWTService
	Loans     *services.LoanService
	Returns   *services.ReturnService
	Notifier  *services.NotificationService
	Scheduler *scheduler.Scheduler
	Outbox    *Outbox
}

// Outbox is a notification channel that keeps every message it receives.
type Outbox struct {
	mu       sync.Mutex
	messages []notifications.Message
}

func (o *Outbox) Name() string { return "outbox" }

func (o *Outbox) Send(_ context.Context, msg notifications.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, msg)
	return nil
}

// Messages returns the messages delivered so far.
func (o *Outbox) Messages() []notifications.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]notifications.Message(nil), o.messages...)
}

// NewEnv provisions a fresh handler test environment with migrations and seed data applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeedData())

	jwtSecret := "test-suite-super-secret-key-32-bytes!!"
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         jwtSecret,
		Issuer:         "test-suite",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	cfg := &app.Config{
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}

	borrowers, err := services.NewBorrowerDirectory(db)
	require.NoError(t, err)
	items, err := services.NewItemGateway(db)
	require.NoError(t, err)

	outbox := &Outbox{}
	dispatcher, err := notifications.NewDispatcher([]notifications.Channel{outbox}, notifications.WithBackoff(0))
	require.NoError(t, err)

	notifier, err := services.NewNotificationService(db, dispatcher, borrowers, items)
	require.NoError(t, err)

	loans, err := services.NewLoanService(db, borrowers, items, services.WithLoanNotifier(notifier))
	require.NoError(t, err)
	returns, err := services.NewReturnService(db, borrowers, items)
	require.NoError(t, err)

	sched, err := scheduler.New(notifier)
	require.NoError(t, err)

	health := monitoring.NewHealthManager(time.Second)
	health.AddReadiness(checks.Database(db), checks.Redis(nil))
	health.AddLiveness(checks.Sweeps(db, 0, nil))

	router, err := api.NewRouter(db, jwtSvc, cfg, api.Services{
		Loans:         loans,
		Returns:       returns,
		Notifications: notifier,
		Sweeps:        sched,
		Health:        health,
	})
	require.NoError(t, err)

	return &Env{
		T:         t,
		DB:        db,
		Router:    router,
		JWT:       jwtSvc,
		Loans:     loans,
		Returns:   returns,
		Notifier:  notifier,
		Scheduler: sched,
		Outbox:    outbox,
	}
}

// Token issues an access token for a desk operator.
func (e *Env) Token(userID string) string {
	e.T.Helper()
	token, err := e.JWT.GenerateAccessToken(iauth.AccessTokenInput{UserID: userID, Name: "Desk " + userID})
	require.NoError(e.T, err)
	return token
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
