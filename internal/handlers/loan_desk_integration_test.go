package handlers_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/loandesk/internal/database"
	sharedtestutil "github.com/charlesng35/loandesk/internal/database/testutil"
	"github.com/charlesng35/loandesk/internal/handlers/testutil"
	"github.com/charlesng35/loandesk/internal/models"
	"github.com/charlesng35/loandesk/internal/services"
)

func TestLoanDeskEndToEnd(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.Token("clerk-1")

	borrower := sharedtestutil.MustCreateBorrower(t, env.DB, "DOC-900", "Bruno Costa")
	camera := sharedtestutil.MustCreateItem(t, env.DB, "CAM-1", "Camera")

	createResp := env.Request(http.MethodPost, "/api/loans", map[string]any{
		"requestor_id":          borrower.ExternalID,
		"scheduled_return_date": time.Now().Add(72 * time.Hour).Format(time.RFC3339),
		"reason":                "Field trip",
		"details":               []map[string]any{{"item_id": camera.ID, "quantity": 2}},
	}, token)
	require.Equal(t, http.StatusCreated, createResp.Code, createResp.Body.String())

	var loan models.Loan
	testutil.DecodeInto(t, testutil.DecodeResponse(t, createResp).Data, &loan)
	require.Len(t, env.Outbox.Messages(), 1)
	require.Contains(t, env.Outbox.Messages()[0].Content, "Camera x2")

	approveResp := env.Request(http.MethodPost, "/api/loans/"+loan.ID+"/approve", nil, token)
	require.Equal(t, http.StatusOK, approveResp.Code, approveResp.Body.String())

	deliverResp := env.Request(http.MethodPost, "/api/loans/"+loan.ID+"/deliver", map[string]any{
		"details": []map[string]any{{
			"loan_detail_id":    loan.Details[0].ID,
			"exit_condition_id": database.ConditionGoodID,
		}},
	}, token)
	require.Equal(t, http.StatusOK, deliverResp.Code, deliverResp.Body.String())

	activeResp := env.Request(http.MethodGet, "/api/loans/active", nil, token)
	require.Equal(t, http.StatusOK, activeResp.Code)
	activePayload := testutil.DecodeResponse(t, activeResp)
	require.Equal(t, 1, activePayload.Meta.Total)

	deliveredResp := env.Request(http.MethodGet, "/api/loans/delivered?borrower="+borrower.ExternalID, nil, token)
	var delivered []models.Loan
	testutil.DecodeInto(t, testutil.DecodeResponse(t, deliveredResp).Data, &delivered)
	require.Len(t, delivered, 1)

	// Due in three days: the manual sweep sends the reminder once.
	sweepResp := env.Request(http.MethodPost, "/api/notifications/sweeps", nil, token)
	require.Equal(t, http.StatusOK, sweepResp.Code, sweepResp.Body.String())
	var report struct {
		Reminders services.SweepResult `json:"reminders"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, sweepResp).Data, &report)
	require.Equal(t, 1, report.Reminders.Sent)

	notificationsResp := env.Request(http.MethodGet, "/api/loans/"+loan.ID+"/notifications", nil, token)
	var history []models.Notification
	testutil.DecodeInto(t, testutil.DecodeResponse(t, notificationsResp).Data, &history)
	require.Len(t, history, 2)
	require.Equal(t, models.TemplateTypeReturn, history[1].Type)

	returnResp := env.Request(http.MethodPost, "/api/loans/"+loan.ID+"/return", map[string]any{
		"returned_items": []map[string]any{{
			"loan_detail_id":      loan.Details[0].ID,
			"return_condition_id": database.ConditionGoodID,
		}},
	}, token)
	require.Equal(t, http.StatusOK, returnResp.Code, returnResp.Body.String())

	var summary services.ReturnSummary
	testutil.DecodeInto(t, testutil.DecodeResponse(t, returnResp).Data, &summary)
	require.Equal(t, models.LoanStatusReturned, summary.Status)

	historyResp := env.Request(http.MethodGet, "/api/borrowers/DOC-900/loans", nil, token)
	require.Equal(t, http.StatusOK, historyResp.Code)
	var loans []models.Loan
	testutil.DecodeInto(t, testutil.DecodeResponse(t, historyResp).Data, &loans)
	require.Len(t, loans, 1)
	require.Equal(t, models.LoanStatusReturned, loans[0].Status)

	var stored models.Loan
	require.NoError(t, env.DB.First(&stored, "id = ?", loan.ID).Error)
	require.NotNil(t, stored.ApproverID)
	require.Equal(t, "clerk-1", *stored.ApproverID)
	require.NotNil(t, stored.ReceivedByID)
	require.Equal(t, "clerk-1", *stored.ReceivedByID)
}

func TestLoanDeskRejectsAnonymousCalls(t *testing.T) {
	env := testutil.NewEnv(t)

	for _, path := range []string{"/api/loans/active", "/api/loans/overdue", "/api/borrowers/DOC-1/loans"} {
		w := env.Request(http.MethodGet, path, nil, "")
		require.Equal(t, http.StatusUnauthorized, w.Code, path)
		resp := testutil.DecodeResponse(t, w)
		require.False(t, resp.Success)
		require.Equal(t, "UNAUTHORIZED", resp.Error.Code)
	}
}
