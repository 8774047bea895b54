package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/loandesk/internal/models"
	apperrors "github.com/charlesng35/loandesk/pkg/errors"
	"github.com/charlesng35/loandesk/pkg/logger"
	"github.com/charlesng35/loandesk/pkg/metrics"
)

// ReturnedItemInput records the condition one line item came back in.
type ReturnedItemInput struct {
	LoanDetailID       string `json:"loan_detail_id" validate:"required,notblank"`
	ReturnConditionID  string `json:"return_condition_id" validate:"required,notblank"`
	ReturnObservations string `json:"return_observations,omitempty"`
}

// ProcessReturnInput carries the data of a return. A zero ActualReturnDate means now.
type ProcessReturnInput struct {
	LoanID           string
	ActualReturnDate time.Time
	ReturnedItems    []ReturnedItemInput
	Notes            string
	ActingUserID     string
}

// ReturnSummary is the outcome of a processed return.
type ReturnSummary struct {
	LoanID     string            `json:"loan_id"`
	Status     models.LoanStatus `json:"status"`
	Message    string            `json:"message"`
	IsLate     bool              `json:"is_late"`
	ReturnDate time.Time         `json:"return_date"`
}

// ReturnServiceOption customises ReturnService.
type ReturnServiceOption func(*ReturnService)

// WithReturnClock overrides the clock used for timestamps (test helper).
func WithReturnClock(clock func() time.Time) ReturnServiceOption {
	return func(s *ReturnService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// ReturnService processes loan returns and serves return-related queries.
type ReturnService struct {
	db        *gorm.DB
	details   *LoanDetailStore
	borrowers BorrowerDirectory
	items     ItemGateway
	now       func() time.Time
	log       *zap.Logger
}

// NewReturnService constructs a ReturnService.
func NewReturnService(db *gorm.DB, borrowers BorrowerDirectory, items ItemGateway, opts ...ReturnServiceOption) (*ReturnService, error) {
	if db == nil {
		return nil, errors.New("return service: db is required")
	}
	if borrowers == nil {
		return nil, errors.New("return service: borrower directory is required")
	}
	if items == nil {
		return nil, errors.New("return service: item gateway is required")
	}

	details, err := NewLoanDetailStore(db)
	if err != nil {
		return nil, err
	}

	svc := &ReturnService{
		db:        db,
		details:   details,
		borrowers: borrowers,
		items:     items,
		now:       time.Now,
		log:       logger.WithModule("returns"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// ProcessReturn closes a delivered loan. Every detail of the loan must be listed.
// The loan update, detail conditions, item availability and borrower standing
// commit together or not at all.
func (s *ReturnService) ProcessReturn(ctx context.Context, input ProcessReturnInput) (*ReturnSummary, error) {
	ctx = ensureContext(ctx)

	conditions, err := s.resolveReturnConditions(ctx, input.ReturnedItems)
	if err != nil {
		return nil, err
	}

	returnDate := input.ActualReturnDate
	if returnDate.IsZero() {
		returnDate = s.now()
	}
	returnDate = returnDate.UTC()

	var (
		loan    *models.Loan
		isLate  bool
		damaged bool
		status  models.LoanStatus
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loan, err = loadLoan(ctx, tx, input.LoanID, true)
		if err != nil {
			return err
		}
		if loan.Status != models.LoanStatusDelivered {
			return apperrors.ErrInvalidTransition.WithMessage("loan %s is %s and cannot be returned", loan.LoanCode, loan.Status)
		}
		if loan.DeliveryDate != nil && returnDate.Before(*loan.DeliveryDate) {
			return apperrors.NewBadRequest("return date must not precede the delivery date")
		}

		details := s.details.WithTx(tx)
		owned, err := details.ListByLoan(ctx, loan.ID)
		if err != nil {
			return err
		}
		byID := make(map[string]models.LoanDetail, len(owned))
		for _, d := range owned {
			byID[d.ID] = d
		}
		listed := make(map[string]struct{}, len(input.ReturnedItems))
		for _, item := range input.ReturnedItems {
			detailID := strings.TrimSpace(item.LoanDetailID)
			if _, ok := byID[detailID]; !ok {
				return apperrors.NewBadRequest(fmt.Sprintf("detail %s does not belong to loan %s", item.LoanDetailID, loan.ID))
			}
			listed[detailID] = struct{}{}
		}
		for _, d := range owned {
			if _, ok := listed[d.ID]; !ok {
				return apperrors.NewBadRequest(fmt.Sprintf("detail %s of loan %s is missing from the return", d.ID, loan.LoanCode))
			}
		}

		isLate = loan.ScheduledReturnDate.Before(returnDate)
		status = models.LoanStatusReturned
		if isLate {
			status = models.LoanStatusReturnedLate
		}

		updates := map[string]any{
			"status":             status,
			"actual_return_date": returnDate,
			"notes":              mergeNotes(loan.Notes, input.Notes),
		}
		if actor := strings.TrimSpace(input.ActingUserID); actor != "" {
			updates["received_by_id"] = actor
		}
		if err := guardedUpdate(ctx, tx, loan, updates); err != nil {
			return err
		}

		items := s.items.WithTx(tx)
		for _, item := range input.ReturnedItems {
			detailID := strings.TrimSpace(item.LoanDetailID)
			condition := conditions[strings.TrimSpace(item.ReturnConditionID)]
			if err := details.RecordReturnCondition(ctx, detailID, condition.ID, item.ReturnObservations); err != nil {
				return err
			}
			if condition.IsDamaged() {
				damaged = true
				continue
			}
			if err := items.SetAvailability(ctx, byID[detailID].ItemID, true); err != nil {
				return err
			}
		}

		if isLate || damaged {
			if err := s.borrowers.WithTx(tx).SetDefaulterStatus(ctx, loan.RequestorID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordTransition(string(models.LoanStatusDelivered), string(status))
	s.log.Info("loan returned", append(logger.LoanFields(loan.ID, loan.LoanCode),
		zap.String("status", string(status)),
		zap.Bool("late", isLate),
		zap.Bool("damaged", damaged))...)

	return &ReturnSummary{
		LoanID:     loan.ID,
		Status:     status,
		Message:    returnMessage(loan.LoanCode, isLate, damaged),
		IsLate:     isLate,
		ReturnDate: returnDate,
	}, nil
}

// GetLoanForReturn returns a delivered loan with its details.
func (s *ReturnService) GetLoanForReturn(ctx context.Context, loanID string) (*models.Loan, error) {
	ctx = ensureContext(ctx)

	loan, err := loadLoan(ctx, s.db, loanID, false)
	if err != nil {
		return nil, err
	}
	if loan.Status != models.LoanStatusDelivered {
		return nil, apperrors.ErrInvalidTransition.WithMessage("loan %s is %s and cannot be returned", loan.LoanCode, loan.Status)
	}

	details, err := s.details.ListByLoan(ctx, loan.ID)
	if err != nil {
		return nil, err
	}
	loan.Details = details
	return loan, nil
}

// GetActiveLoans lists delivered loans, optionally for the borrower holding the
// given external document id.
func (s *ReturnService) GetActiveLoans(ctx context.Context, borrowerExternalID string) ([]models.Loan, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Where("status = ?", models.LoanStatusDelivered)
	if borrowerExternalID = strings.TrimSpace(borrowerExternalID); borrowerExternalID != "" {
		borrower, err := s.borrowers.ResolveByExternalID(ctx, borrowerExternalID)
		if err != nil {
			return nil, err
		}
		query = query.Where("requestor_id = ?", borrower.ID)
	}

	var loans []models.Loan
	if err := query.Order("scheduled_return_date ASC").Find(&loans).Error; err != nil {
		return nil, fmt.Errorf("return service: list delivered loans: %w", err)
	}
	if err := s.details.attachDetails(ctx, loans); err != nil {
		return nil, err
	}
	return loans, nil
}

// GetOverdueLoans lists delivered loans past their due date, oldest first.
func (s *ReturnService) GetOverdueLoans(ctx context.Context) ([]models.Loan, error) {
	ctx = ensureContext(ctx)

	var loans []models.Loan
	if err := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_return_date < ?", models.LoanStatusDelivered, s.now().UTC()).
		Order("scheduled_return_date ASC").
		Find(&loans).Error; err != nil {
		return nil, fmt.Errorf("return service: list overdue loans: %w", err)
	}
	if err := s.details.attachDetails(ctx, loans); err != nil {
		return nil, err
	}
	return loans, nil
}

func (s *ReturnService) resolveReturnConditions(ctx context.Context, items []ReturnedItemInput) (map[string]models.Condition, error) {
	if len(items) == 0 {
		return nil, apperrors.NewBadRequest("at least one returned item is required")
	}

	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		detailID := strings.TrimSpace(item.LoanDetailID)
		if detailID == "" {
			return nil, apperrors.NewBadRequest("loan detail id is required")
		}
		if _, dup := seen[detailID]; dup {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("detail %s is listed more than once", detailID))
		}
		seen[detailID] = struct{}{}

		conditionID := strings.TrimSpace(item.ReturnConditionID)
		if conditionID == "" {
			return nil, apperrors.NewBadRequest("return condition id is required")
		}
		ids = append(ids, conditionID)
	}
	ids = normaliseIDs(ids)

	var conditions []models.Condition
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&conditions).Error; err != nil {
		return nil, fmt.Errorf("return service: load conditions: %w", err)
	}
	byID := make(map[string]models.Condition, len(conditions))
	for _, c := range conditions {
		byID[c.ID] = c
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown condition %s", id))
		}
	}
	return byID, nil
}

func returnMessage(code string, late, damaged bool) string {
	switch {
	case late && damaged:
		return fmt.Sprintf("Loan %s returned late with damaged items; borrower marked as defaulter", code)
	case late:
		return fmt.Sprintf("Loan %s returned late; borrower marked as defaulter", code)
	case damaged:
		return fmt.Sprintf("Loan %s returned with damaged items; borrower marked as defaulter", code)
	default:
		return fmt.Sprintf("Loan %s returned on time", code)
	}
}
