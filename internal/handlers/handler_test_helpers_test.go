package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/loandesk/internal/database/testutil"
	"github.com/charlesng35/loandesk/internal/models"
	"github.com/charlesng35/loandesk/internal/notifications"
	"github.com/charlesng35/loandesk/internal/services"
	"github.com/charlesng35/loandesk/pkg/response"
)

type discardChannel struct{}

func (discardChannel) Name() string { return "discard" }

func (discardChannel) Send(context.Context, notifications.Message) error { return nil }

type handlerFixture struct {
	db       *gorm.DB
	loans    *services.LoanService
	returns  *services.ReturnService
	notifier *services.NotificationService
	borrower *models.Borrower
	laptop   *models.Item
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())

	borrowers, err := services.NewBorrowerDirectory(db)
	require.NoError(t, err)
	items, err := services.NewItemGateway(db)
	require.NoError(t, err)

	dispatcher, err := notifications.NewDispatcher([]notifications.Channel{discardChannel{}})
	require.NoError(t, err)
	notifier, err := services.NewNotificationService(db, dispatcher, borrowers, items)
	require.NoError(t, err)

	loans, err := services.NewLoanService(db, borrowers, items)
	require.NoError(t, err)
	returns, err := services.NewReturnService(db, borrowers, items)
	require.NoError(t, err)

	return &handlerFixture{
		db:       db,
		loans:    loans,
		returns:  returns,
		notifier: notifier,
		borrower: testutil.MustCreateBorrower(t, db, "DOC-100", "Ana Lima"),
		laptop:   testutil.MustCreateItem(t, db, "LAP-1", "Laptop"),
	}
}

func newTestContext(t *testing.T, method, path string, body any) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch v := body.(type) {
		case string:
			buf.WriteString(v)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(v))
		}
	}

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(method, path, &buf)
	if body != nil {
		c.Request.Header.Set("Content-Type", "application/json")
	}
	return c, recorder
}

func decodePayload(t *testing.T, recorder *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var payload response.Response
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload), recorder.Body.String())
	return payload
}

func decodeData[T any](t *testing.T, payload response.Response, dest *T) {
	t.Helper()
	raw, err := json.Marshal(payload.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, dest))
}
