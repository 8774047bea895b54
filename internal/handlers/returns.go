package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/loandesk/internal/services"
	"github.com/charlesng35/loandesk/pkg/response"
)

// ReturnHandler exposes the return desk.
type ReturnHandler struct {
	returns *services.ReturnService
}

// NewReturnHandler constructs a return handler.
func NewReturnHandler(returns *services.ReturnService) (*ReturnHandler, error) {
	if returns == nil {
		return nil, errors.New("return handler: return service is required")
	}
	return &ReturnHandler{returns: returns}, nil
}

type processReturnRequest struct {
	ActualReturnDate *time.Time                   `json:"actual_return_date"`
	ReturnedItems    []services.ReturnedItemInput `json:"returned_items" validate:"required,min=1,dive"`
	Notes            string                       `json:"notes" validate:"max=2000"`
}

// Preview returns the delivered loan that is about to be returned.
func (h *ReturnHandler) Preview(c *gin.Context) {
	loan, err := h.returns.GetLoanForReturn(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, loan)
}

// Process closes a delivered loan.
func (h *ReturnHandler) Process(c *gin.Context) {
	var req processReturnRequest
	if !bindAndValidate(c, &req) {
		return
	}

	input := services.ProcessReturnInput{
		LoanID:        c.Param("id"),
		ReturnedItems: req.ReturnedItems,
		Notes:         req.Notes,
	}
	if actor, ok := actingOperator(c); ok {
		input.ActingUserID = actor
	}
	if req.ActualReturnDate != nil {
		input.ActualReturnDate = *req.ActualReturnDate
	}

	summary, err := h.returns.ProcessReturn(requestContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, summary)
}

// Delivered lists loans currently out, optionally narrowed by ?borrower=<external id>.
func (h *ReturnHandler) Delivered(c *gin.Context) {
	loans, err := h.returns.GetActiveLoans(requestContext(c), c.Query("borrower"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, loans)
}

// Overdue lists delivered loans past their due date.
func (h *ReturnHandler) Overdue(c *gin.Context) {
	loans, err := h.returns.GetOverdueLoans(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, loans)
}
