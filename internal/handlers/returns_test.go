package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/loandesk/internal/database"
	"github.com/charlesng35/loandesk/internal/middleware"
	"github.com/charlesng35/loandesk/internal/models"
	"github.com/charlesng35/loandesk/internal/services"
)

func (f *handlerFixture) deliveredLoan(t *testing.T, due time.Time) *models.Loan {
	t.Helper()
	ctx := t.Context()

	loan, err := f.loans.Create(ctx, services.CreateLoanInput{
		ScheduledReturnDate: due,
		RequestorExternalID: f.borrower.ExternalID,
		Details:             []services.LoanDetailInput{{ItemID: f.laptop.ID, Quantity: 1}},
		BlockBlacklisted:    true,
	})
	require.NoError(t, err)
	_, err = f.loans.ApproveLoan(ctx, services.ApproveLoanInput{LoanID: loan.ID, ApproverID: "staff-1"})
	require.NoError(t, err)
	delivered, err := f.loans.DeliverLoan(ctx, services.DeliverLoanInput{LoanID: loan.ID})
	require.NoError(t, err)
	return delivered
}

func TestReturnHandlerPreviewAndProcess(t *testing.T) {
	f := newHandlerFixture(t)
	handler, err := NewReturnHandler(f.returns)
	require.NoError(t, err)

	loan := f.deliveredLoan(t, time.Now().Add(48*time.Hour))

	c, recorder := newTestContext(t, http.MethodGet, "/api/loans/"+loan.ID+"/return", nil)
	c.Params = gin.Params{{Key: "id", Value: loan.ID}}
	handler.Preview(c)
	require.Equal(t, http.StatusOK, recorder.Code)

	var preview models.Loan
	decodeData(t, decodePayload(t, recorder), &preview)
	require.Len(t, preview.Details, 1)

	body := map[string]any{
		"returned_items": []map[string]any{{
			"loan_detail_id":      preview.Details[0].ID,
			"return_condition_id": database.ConditionGoodID,
		}},
		"notes": "all good",
	}
	c, recorder = newTestContext(t, http.MethodPost, "/api/loans/"+loan.ID+"/return", body)
	c.Params = gin.Params{{Key: "id", Value: loan.ID}}
	c.Set(middleware.CtxUserIDKey, "clerk-2")
	handler.Process(c)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	var summary services.ReturnSummary
	decodeData(t, decodePayload(t, recorder), &summary)
	require.Equal(t, models.LoanStatusReturned, summary.Status)
	require.False(t, summary.IsLate)
	require.Contains(t, summary.Message, "returned on time")

	var stored models.Loan
	require.NoError(t, f.db.First(&stored, "id = ?", loan.ID).Error)
	require.NotNil(t, stored.ReceivedByID)
	require.Equal(t, "clerk-2", *stored.ReceivedByID)

	// The loan is closed; previewing it again is an invalid transition.
	c, recorder = newTestContext(t, http.MethodGet, "/api/loans/"+loan.ID+"/return", nil)
	c.Params = gin.Params{{Key: "id", Value: loan.ID}}
	handler.Preview(c)
	require.Equal(t, http.StatusConflict, recorder.Code)
}

func TestReturnHandlerLateReturnMarksDefaulter(t *testing.T) {
	f := newHandlerFixture(t)
	handler, err := NewReturnHandler(f.returns)
	require.NoError(t, err)

	due := time.Now().Add(time.Hour)
	loan := f.deliveredLoan(t, due)

	body := map[string]any{
		"actual_return_date": due.Add(26 * time.Hour).Format(time.RFC3339),
		"returned_items": []map[string]any{{
			"loan_detail_id":      loan.Details[0].ID,
			"return_condition_id": database.ConditionDamagedID,
		}},
	}
	c, recorder := newTestContext(t, http.MethodPost, "/api/loans/"+loan.ID+"/return", body)
	c.Params = gin.Params{{Key: "id", Value: loan.ID}}
	handler.Process(c)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	var summary services.ReturnSummary
	decodeData(t, decodePayload(t, recorder), &summary)
	require.Equal(t, models.LoanStatusReturnedLate, summary.Status)
	require.True(t, summary.IsLate)
	require.Contains(t, summary.Message, "late with damaged items")

	var borrower models.Borrower
	require.NoError(t, f.db.First(&borrower, "id = ?", f.borrower.ID).Error)
	require.Equal(t, models.BorrowerStatusDefaulter, borrower.Status)
}

func TestReturnHandlerProcessValidation(t *testing.T) {
	f := newHandlerFixture(t)
	handler, err := NewReturnHandler(f.returns)
	require.NoError(t, err)

	loan := f.deliveredLoan(t, time.Now().Add(time.Hour))

	cases := map[string]map[string]any{
		"no items":          {"returned_items": []map[string]any{}},
		"missing condition": {"returned_items": []map[string]any{{"loan_detail_id": loan.Details[0].ID}}},
		"foreign detail": {"returned_items": []map[string]any{{
			"loan_detail_id":      "not-a-detail",
			"return_condition_id": database.ConditionGoodID,
		}}},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			c, recorder := newTestContext(t, http.MethodPost, "/api/loans/"+loan.ID+"/return", body)
			c.Params = gin.Params{{Key: "id", Value: loan.ID}}
			handler.Process(c)
			require.Equal(t, http.StatusBadRequest, recorder.Code, recorder.Body.String())
		})
	}

	var stored models.Loan
	require.NoError(t, f.db.First(&stored, "id = ?", loan.ID).Error)
	require.Equal(t, models.LoanStatusDelivered, stored.Status)
}

func TestReturnHandlerListings(t *testing.T) {
	f := newHandlerFixture(t)
	handler, err := NewReturnHandler(f.returns)
	require.NoError(t, err)

	loan := f.deliveredLoan(t, time.Now().Add(time.Hour))

	c, recorder := newTestContext(t, http.MethodGet, "/api/loans/delivered?borrower="+f.borrower.ExternalID, nil)
	handler.Delivered(c)
	require.Equal(t, http.StatusOK, recorder.Code)
	var delivered []models.Loan
	decodeData(t, decodePayload(t, recorder), &delivered)
	require.Len(t, delivered, 1)
	require.Equal(t, loan.ID, delivered[0].ID)

	c, recorder = newTestContext(t, http.MethodGet, "/api/loans/delivered?borrower=DOC-404", nil)
	handler.Delivered(c)
	require.Equal(t, http.StatusNotFound, recorder.Code)

	c, recorder = newTestContext(t, http.MethodGet, "/api/loans/delivered?borrower="+f.borrower.ID, nil)
	handler.Delivered(c)
	require.Equal(t, http.StatusNotFound, recorder.Code, "internal ids are not accepted")

	c, recorder = newTestContext(t, http.MethodGet, "/api/loans/overdue", nil)
	handler.Overdue(c)
	require.Equal(t, http.StatusOK, recorder.Code)
	var overdue []models.Loan
	decodeData(t, decodePayload(t, recorder), &overdue)
	require.Empty(t, overdue)

	require.NoError(t, f.db.Model(&models.Loan{}).Where("id = ?", loan.ID).
		Update("scheduled_return_date", time.Now().Add(-time.Hour).UTC()).Error)

	c, recorder = newTestContext(t, http.MethodGet, "/api/loans/overdue", nil)
	handler.Overdue(c)
	decodeData(t, decodePayload(t, recorder), &overdue)
	require.Len(t, overdue, 1)
}
