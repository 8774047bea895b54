package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/loandesk/internal/models"
	"github.com/charlesng35/loandesk/internal/services"
	appErrors "github.com/charlesng35/loandesk/pkg/errors"
	"github.com/charlesng35/loandesk/pkg/response"
)

// LoanHandler exposes the loan lifecycle over HTTP.
type LoanHandler struct {
	loans *services.LoanService
}

// NewLoanHandler constructs a loan handler.
func NewLoanHandler(loans *services.LoanService) (*LoanHandler, error) {
	if loans == nil {
		return nil, errors.New("loan handler: loan service is required")
	}
	return &LoanHandler{loans: loans}, nil
}

type createLoanRequest struct {
	RequestorID         string                     `json:"requestor_id" validate:"required,notblank,max=64"`
	ScheduledReturnDate time.Time                  `json:"scheduled_return_date" validate:"required"`
	Reason              string                     `json:"reason" validate:"max=2000"`
	AssociatedEvent     string                     `json:"associated_event" validate:"max=255"`
	ExternalLocation    string                     `json:"external_location" validate:"max=255"`
	Details             []services.LoanDetailInput `json:"details" validate:"required,min=1,dive"`
	// BlockBlacklisted defaults to true when omitted.
	BlockBlacklisted *bool `json:"block_blacklisted"`
}

type loanNotesRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

type deliverLoanRequest struct {
	DeliveryDate *time.Time                     `json:"delivery_date"`
	Notes        string                         `json:"notes" validate:"max=2000"`
	Details      []services.DeliveryDetailInput `json:"details" validate:"omitempty,dive"`
}

// Create registers a new loan request.
func (h *LoanHandler) Create(c *gin.Context) {
	var req createLoanRequest
	if !bindAndValidate(c, &req) {
		return
	}

	block := true
	if req.BlockBlacklisted != nil {
		block = *req.BlockBlacklisted
	}

	loan, err := h.loans.Create(requestContext(c), services.CreateLoanInput{
		ScheduledReturnDate: req.ScheduledReturnDate,
		RequestorExternalID: req.RequestorID,
		Reason:              req.Reason,
		AssociatedEvent:     req.AssociatedEvent,
		ExternalLocation:    req.ExternalLocation,
		Details:             req.Details,
		BlockBlacklisted:    block,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, loan)
}

// Get returns one loan with its details.
func (h *LoanHandler) Get(c *gin.Context) {
	loan, err := h.loans.GetLoan(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, loan)
}

// Active pages through loans that are still in flight.
func (h *LoanHandler) Active(c *gin.Context) {
	page, perPage := pageParams(c)
	loans, total, err := h.loans.FindActive(requestContext(c), page, perPage)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, loans, response.NewMeta(page, perPage, total))
}

// Approve moves a requested loan to APPROVED with the caller as approver.
func (h *LoanHandler) Approve(c *gin.Context) {
	actor, ok := actingOperator(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req loanNotesRequest
	if !bindOptional(c, &req) {
		return
	}

	loan, err := h.loans.ApproveLoan(requestContext(c), services.ApproveLoanInput{
		LoanID:     c.Param("id"),
		ApproverID: actor,
		Notes:      req.Notes,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, loan)
}

// Deliver hands an approved loan to the borrower.
func (h *LoanHandler) Deliver(c *gin.Context) {
	var req deliverLoanRequest
	if !bindOptional(c, &req) {
		return
	}

	input := services.DeliverLoanInput{
		LoanID:  c.Param("id"),
		Notes:   req.Notes,
		Details: req.Details,
	}
	if req.DeliveryDate != nil {
		input.DeliveryDate = *req.DeliveryDate
	}

	loan, err := h.loans.DeliverLoan(requestContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, loan)
}

// Cancel withdraws a loan that has not reached a terminal state.
func (h *LoanHandler) Cancel(c *gin.Context) {
	h.closeWith(c, h.loans.CancelLoan)
}

// Expire marks a loan as lapsed.
func (h *LoanHandler) Expire(c *gin.Context) {
	h.closeWith(c, h.loans.ExpireLoan)
}

func (h *LoanHandler) closeWith(c *gin.Context, op func(ctx context.Context, loanID, notes string) (*models.Loan, error)) {
	var req loanNotesRequest
	if !bindOptional(c, &req) {
		return
	}

	loan, err := op(requestContext(c), c.Param("id"), req.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, loan)
}
