package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/loandesk/internal/services"
	"github.com/charlesng35/loandesk/pkg/response"
)

// BorrowerHandler serves borrower-centric loan views.
type BorrowerHandler struct {
	loans *services.LoanService
}

// NewBorrowerHandler constructs a borrower handler.
func NewBorrowerHandler(loans *services.LoanService) (*BorrowerHandler, error) {
	if loans == nil {
		return nil, errors.New("borrower handler: loan service is required")
	}
	return &BorrowerHandler{loans: loans}, nil
}

// Loans pages through every loan of the borrower identified by :externalId.
func (h *BorrowerHandler) Loans(c *gin.Context) {
	page, perPage := pageParams(c)
	loans, total, err := h.loans.FindByBorrower(requestContext(c), c.Param("externalId"), page, perPage)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, loans, response.NewMeta(page, perPage, total))
}
