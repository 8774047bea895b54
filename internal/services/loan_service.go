package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/loandesk/internal/models"
	apperrors "github.com/charlesng35/loandesk/pkg/errors"
	"github.com/charlesng35/loandesk/pkg/logger"
	"github.com/charlesng35/loandesk/pkg/metrics"
)

const loanCodeAttempts = 3

// borrowerLoanPriority lists in-flight loans before finished ones.
var borrowerLoanPriority = fmt.Sprintf("CASE status WHEN '%s' THEN 0 WHEN '%s' THEN 1 WHEN '%s' THEN 2 ELSE 3 END",
	models.LoanStatusDelivered, models.LoanStatusApproved, models.LoanStatusRequested)

// LoanNotifier receives lifecycle events after they are committed.
type LoanNotifier interface {
	OnLoanCreated(ctx context.Context, loanID string)
}

// LoanDetailInput describes one requested line item.
type LoanDetailInput struct {
	ItemID           string  `json:"item_id" validate:"required,notblank"`
	Quantity         int     `json:"quantity" validate:"gte=1"`
	ExitConditionID  *string `json:"exit_condition_id,omitempty"`
	ExitObservations string  `json:"exit_observations,omitempty"`
}

// CreateLoanInput carries the data required to register a loan request.
type CreateLoanInput struct {
	ScheduledReturnDate time.Time
	RequestorExternalID string
	Reason              string
	AssociatedEvent     string
	ExternalLocation    string
	Details             []LoanDetailInput
	BlockBlacklisted    bool
}

// ApproveLoanInput carries approval data.
type ApproveLoanInput struct {
	LoanID     string
	ApproverID string
	Notes      string
}

// DeliveryDetailInput records the hand-off condition of one line item.
type DeliveryDetailInput struct {
	LoanDetailID     string `json:"loan_detail_id" validate:"required,notblank"`
	ExitConditionID  string `json:"exit_condition_id" validate:"required,notblank"`
	ExitObservations string `json:"exit_observations,omitempty"`
}

// DeliverLoanInput carries delivery data. A zero DeliveryDate means now.
type DeliverLoanInput struct {
	LoanID       string
	DeliveryDate time.Time
	Notes        string
	Details      []DeliveryDetailInput
}

// LoanServiceOption customises LoanService.
type LoanServiceOption func(*LoanService)

// WithLoanClock overrides the clock used for timestamps (test helper).
func WithLoanClock(clock func() time.Time) LoanServiceOption {
	return func(s *LoanService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithLoanNotifier wires the component told about committed loans.
func WithLoanNotifier(notifier LoanNotifier) LoanServiceOption {
	return func(s *LoanService) {
		s.notifier = notifier
	}
}

// WithItemAvailabilityCheck toggles the advisory availability check at creation.
func WithItemAvailabilityCheck(enabled bool) LoanServiceOption {
	return func(s *LoanService) {
		s.checkAvailability = enabled
	}
}

// WithExternalTimeout bounds calls into the borrower directory and item gateway.
func WithExternalTimeout(timeout time.Duration) LoanServiceOption {
	return func(s *LoanService) {
		if timeout > 0 {
			s.externalTimeout = timeout
		}
	}
}

// WithAsyncNotifications dispatches loan-created notifications on a background goroutine.
func WithAsyncNotifications(enabled bool) LoanServiceOption {
	return func(s *LoanService) {
		s.asyncNotify = enabled
	}
}

// WithLoanCodeGenerator overrides loan code generation (test helper).
func WithLoanCodeGenerator(generate func(time.Time) string) LoanServiceOption {
	return func(s *LoanService) {
		if generate != nil {
			s.newCode = generate
		}
	}
}

// LoanService owns the loan aggregate and its state machine.
type LoanService struct {
	db        *gorm.DB
	details   *LoanDetailStore
	borrowers BorrowerDirectory
	items     ItemGateway
	notifier  LoanNotifier
	now       func() time.Time
	newCode   func(time.Time) string
	log       *zap.Logger

	checkAvailability bool
	asyncNotify       bool
	externalTimeout   time.Duration
}

// NewLoanService constructs the lifecycle engine.
func NewLoanService(db *gorm.DB, borrowers BorrowerDirectory, items ItemGateway, opts ...LoanServiceOption) (*LoanService, error) {
	if db == nil {
		return nil, errors.New("loan service: db is required")
	}
	if borrowers == nil {
		return nil, errors.New("loan service: borrower directory is required")
	}
	if items == nil {
		return nil, errors.New("loan service: item gateway is required")
	}

	details, err := NewLoanDetailStore(db)
	if err != nil {
		return nil, err
	}

	svc := &LoanService{
		db:                db,
		details:           details,
		borrowers:         borrowers,
		items:             items,
		now:               time.Now,
		newCode:           newLoanCode,
		log:               logger.WithModule("loans"),
		checkAvailability: true,
		externalTimeout:   5 * time.Second,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Create registers a new loan in REQUESTED status together with its details.
func (s *LoanService) Create(ctx context.Context, input CreateLoanInput) (*models.Loan, error) {
	ctx = ensureContext(ctx)
	now := s.now().UTC()

	if err := validateCreateInput(input, now); err != nil {
		return nil, err
	}

	borrower, err := s.resolveBorrower(ctx, input.RequestorExternalID)
	if err != nil {
		return nil, err
	}
	if input.BlockBlacklisted && !borrower.Eligible() {
		return nil, apperrors.ErrBorrowerNotEligible.WithMessage("borrower %s has status %s", borrower.ExternalID, borrower.Status)
	}

	if s.checkAvailability {
		if err := s.ensureItemsAvailable(ctx, input.Details); err != nil {
			return nil, err
		}
	}
	if err := s.ensureConditionsExist(ctx, exitConditionIDs(input.Details)); err != nil {
		return nil, err
	}

	var loan *models.Loan
	for attempt := 1; attempt <= loanCodeAttempts; attempt++ {
		loan, err = s.insertLoan(ctx, input, borrower.ID, now)
		if err == nil {
			break
		}
		if !isUniqueConstraintError(err) || attempt == loanCodeAttempts {
			return nil, fmt.Errorf("loan service: create loan: %w", err)
		}
		s.log.Warn("loan code collision, retrying", zap.Int("attempt", attempt), zap.Error(err))
	}

	metrics.RecordTransition("", string(models.LoanStatusRequested))
	s.log.Info("loan requested", append(logger.LoanFields(loan.ID, loan.LoanCode),
		zap.String("requestor_id", loan.RequestorID),
		zap.Int("details", len(loan.Details)))...)

	s.dispatchCreated(ctx, loan.ID)
	return loan, nil
}

func (s *LoanService) insertLoan(ctx context.Context, input CreateLoanInput, requestorID string, now time.Time) (*models.Loan, error) {
	loan := &models.Loan{
		LoanCode:            s.newCode(now),
		RequestDate:         now,
		ScheduledReturnDate: input.ScheduledReturnDate.UTC(),
		Status:              models.LoanStatusRequested,
		RequestorID:         requestorID,
		Reason:              strings.TrimSpace(input.Reason),
		AssociatedEvent:     strings.TrimSpace(input.AssociatedEvent),
		ExternalLocation:    strings.TrimSpace(input.ExternalLocation),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(loan).Error; err != nil {
			return err
		}
		details := s.details.WithTx(tx)
		loan.Details = make([]models.LoanDetail, 0, len(input.Details))
		for _, in := range input.Details {
			detail, err := details.CreateDetail(ctx, CreateDetailInput{
				LoanID:           loan.ID,
				ItemID:           in.ItemID,
				Quantity:         in.Quantity,
				ExitConditionID:  trimmedPtr(in.ExitConditionID),
				ExitObservations: in.ExitObservations,
			})
			if err != nil {
				return err
			}
			loan.Details = append(loan.Details, *detail)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// ApproveLoan moves a REQUESTED loan to APPROVED.
func (s *LoanService) ApproveLoan(ctx context.Context, input ApproveLoanInput) (*models.Loan, error) {
	approverID := strings.TrimSpace(input.ApproverID)
	if approverID == "" {
		return nil, apperrors.NewBadRequest("approver id is required")
	}

	return s.transition(ctx, input.LoanID, models.LoanStatusApproved, func(_ *gorm.DB, loan *models.Loan, updates map[string]any) error {
		now := s.now().UTC()
		updates["approval_date"] = now
		updates["approver_id"] = approverID
		updates["notes"] = mergeNotes(loan.Notes, input.Notes)
		return nil
	})
}

// DeliverLoan moves an APPROVED loan to DELIVERED and takes its items out of circulation.
func (s *LoanService) DeliverLoan(ctx context.Context, input DeliverLoanInput) (*models.Loan, error) {
	deliveryDate := input.DeliveryDate
	if deliveryDate.IsZero() {
		deliveryDate = s.now()
	}
	deliveryDate = deliveryDate.UTC()

	conditionIDs := make([]string, 0, len(input.Details))
	for _, d := range input.Details {
		conditionIDs = append(conditionIDs, d.ExitConditionID)
	}
	if err := s.ensureConditionsExist(ctx, conditionIDs); err != nil {
		return nil, err
	}

	return s.transition(ctx, input.LoanID, models.LoanStatusDelivered, func(tx *gorm.DB, loan *models.Loan, updates map[string]any) error {
		details, err := s.details.WithTx(tx).ListByLoan(ctx, loan.ID)
		if err != nil {
			return err
		}
		owned := make(map[string]models.LoanDetail, len(details))
		for _, d := range details {
			owned[d.ID] = d
		}
		for _, in := range input.Details {
			if _, ok := owned[in.LoanDetailID]; !ok {
				return apperrors.NewBadRequest(fmt.Sprintf("detail %s does not belong to loan %s", in.LoanDetailID, loan.ID))
			}
			if err := s.details.WithTx(tx).RecordExitCondition(ctx, in.LoanDetailID, in.ExitConditionID, in.ExitObservations); err != nil {
				return err
			}
		}

		items := s.items.WithTx(tx)
		for _, d := range details {
			available, err := items.IsAvailableForLoan(ctx, d.ItemID)
			if err != nil {
				return err
			}
			if !available {
				return apperrors.ErrItemUnavailable.WithMessage("item %s is already out on another loan", d.ItemID)
			}
		}
		for _, d := range details {
			if err := items.SetAvailability(ctx, d.ItemID, false); err != nil {
				return err
			}
		}

		updates["delivery_date"] = deliveryDate
		updates["notes"] = mergeNotes(loan.Notes, input.Notes)
		return nil
	})
}

// CancelLoan moves a non-terminal loan to CANCELLED. Items of a delivered loan become available again.
func (s *LoanService) CancelLoan(ctx context.Context, loanID, notes string) (*models.Loan, error) {
	return s.transition(ctx, loanID, models.LoanStatusCancelled, func(tx *gorm.DB, loan *models.Loan, updates map[string]any) error {
		if loan.Status == models.LoanStatusDelivered {
			if err := s.releaseItems(ctx, tx, loan.ID); err != nil {
				return err
			}
		}
		updates["notes"] = mergeNotes(loan.Notes, notes)
		return nil
	})
}

// ExpireLoan moves a non-terminal loan to EXPIRED.
func (s *LoanService) ExpireLoan(ctx context.Context, loanID, notes string) (*models.Loan, error) {
	return s.transition(ctx, loanID, models.LoanStatusExpired, func(_ *gorm.DB, loan *models.Loan, updates map[string]any) error {
		updates["notes"] = mergeNotes(loan.Notes, notes)
		return nil
	})
}

// GetLoan returns a loan hydrated with its details.
func (s *LoanService) GetLoan(ctx context.Context, loanID string) (*models.Loan, error) {
	ctx = ensureContext(ctx)
	loan, err := loadLoan(ctx, s.db, loanID, false)
	if err != nil {
		return nil, err
	}
	if err := s.hydrate(ctx, loan); err != nil {
		return nil, err
	}
	return loan, nil
}

// FindActive pages through loans that are still in flight.
func (s *LoanService) FindActive(ctx context.Context, page, perPage int) ([]models.Loan, int64, error) {
	ctx = ensureContext(ctx)
	page, perPage = normalisePage(page, perPage)

	query := s.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("status NOT IN ?", models.ActiveExcludedStatuses)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("loan service: count active loans: %w", err)
	}

	var loans []models.Loan
	if err := query.
		Order("requestor_id ASC").
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&loans).Error; err != nil {
		return nil, 0, fmt.Errorf("loan service: list active loans: %w", err)
	}

	if err := s.details.attachDetails(ctx, loans); err != nil {
		return nil, 0, err
	}
	return loans, total, nil
}

// FindByBorrower pages through a borrower's non-cancelled loans, in-flight statuses first.
func (s *LoanService) FindByBorrower(ctx context.Context, externalID string, page, perPage int) ([]models.Loan, int64, error) {
	ctx = ensureContext(ctx)
	page, perPage = normalisePage(page, perPage)

	borrower, err := s.resolveBorrower(ctx, externalID)
	if err != nil {
		return nil, 0, err
	}

	query := s.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("requestor_id = ? AND status <> ?", borrower.ID, models.LoanStatusCancelled)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("loan service: count borrower loans: %w", err)
	}

	var loans []models.Loan
	if err := query.
		Order(borrowerLoanPriority).
		Order("request_date DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&loans).Error; err != nil {
		return nil, 0, fmt.Errorf("loan service: list borrower loans: %w", err)
	}

	if err := s.details.attachDetails(ctx, loans); err != nil {
		return nil, 0, err
	}
	return loans, total, nil
}

type transitionFunc func(tx *gorm.DB, loan *models.Loan, updates map[string]any) error

// transition applies target to the loan after a locked read and a status-guarded update,
// so a concurrent caller that already moved the loan makes this call fail.
func (s *LoanService) transition(ctx context.Context, loanID string, target models.LoanStatus, mutate transitionFunc) (*models.Loan, error) {
	ctx = ensureContext(ctx)

	var (
		loan models.Loan
		from models.LoanStatus
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := loadLoan(ctx, tx, loanID, true)
		if err != nil {
			return err
		}
		from = current.Status
		if !from.CanTransitionTo(target) {
			return apperrors.ErrInvalidTransition.WithMessage("loan %s cannot move from %s to %s", current.LoanCode, from, target)
		}

		updates := map[string]any{"status": target}
		if err := mutate(tx, current, updates); err != nil {
			return err
		}
		if err := guardedUpdate(ctx, tx, current, updates); err != nil {
			return err
		}

		reloaded, err := loadLoan(ctx, tx, loanID, false)
		if err != nil {
			return err
		}
		loan = *reloaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.hydrate(ctx, &loan); err != nil {
		return nil, err
	}

	metrics.RecordTransition(string(from), string(target))
	s.log.Info("loan transitioned", append(logger.LoanFields(loan.ID, loan.LoanCode),
		zap.String("from", string(from)),
		zap.String("to", string(target)))...)
	return &loan, nil
}

// guardedUpdate writes updates only while the loan still holds the status read under lock.
func guardedUpdate(ctx context.Context, tx *gorm.DB, loan *models.Loan, updates map[string]any) error {
	result := tx.WithContext(ctx).
		Model(&models.Loan{}).
		Where("id = ? AND status = ?", loan.ID, loan.Status).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("loan service: update loan: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrInvalidTransition.WithMessage("loan %s is no longer %s", loan.LoanCode, loan.Status)
	}
	return nil
}

func loadLoan(ctx context.Context, db *gorm.DB, loanID string, lock bool) (*models.Loan, error) {
	loanID = strings.TrimSpace(loanID)
	if loanID == "" {
		return nil, apperrors.NewBadRequest("loan id is required")
	}

	query := db.WithContext(ctx)
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var loan models.Loan
	if err := query.First(&loan, "id = ?", loanID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("loan %s not found", loanID)
		}
		return nil, fmt.Errorf("loan service: load loan: %w", err)
	}
	return &loan, nil
}

func (s *LoanService) hydrate(ctx context.Context, loan *models.Loan) error {
	details, err := s.details.ListByLoan(ctx, loan.ID)
	if err != nil {
		return err
	}
	loan.Details = details
	return nil
}

func (s *LoanService) releaseItems(ctx context.Context, tx *gorm.DB, loanID string) error {
	details, err := s.details.WithTx(tx).ListByLoan(ctx, loanID)
	if err != nil {
		return err
	}
	items := s.items.WithTx(tx)
	for _, d := range details {
		if err := items.SetAvailability(ctx, d.ItemID, true); err != nil {
			return err
		}
	}
	return nil
}

func (s *LoanService) resolveBorrower(ctx context.Context, externalID string) (*models.Borrower, error) {
	callCtx, cancel := withTimeout(ctx, s.externalTimeout)
	defer cancel()
	return s.borrowers.ResolveByExternalID(callCtx, externalID)
}

func (s *LoanService) ensureItemsAvailable(ctx context.Context, details []LoanDetailInput) error {
	callCtx, cancel := withTimeout(ctx, s.externalTimeout)
	defer cancel()

	for _, d := range details {
		available, err := s.items.IsAvailableForLoan(callCtx, strings.TrimSpace(d.ItemID))
		if err != nil {
			return err
		}
		if !available {
			return apperrors.ErrItemUnavailable.WithMessage("item %s is not available for loan", d.ItemID)
		}
	}
	return nil
}

func (s *LoanService) ensureConditionsExist(ctx context.Context, ids []string) error {
	ids = normaliseIDs(ids)
	if len(ids) == 0 {
		return nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Condition{}).Where("id IN ?", ids).Count(&count).Error; err != nil {
		return fmt.Errorf("loan service: check conditions: %w", err)
	}
	if int(count) != len(ids) {
		return apperrors.NewBadRequest("unknown condition id")
	}
	return nil
}

// dispatchCreated runs after commit; notification failures never reach the caller.
func (s *LoanService) dispatchCreated(ctx context.Context, loanID string) {
	if s.notifier == nil {
		return
	}
	if s.asyncNotify {
		go s.notifier.OnLoanCreated(context.WithoutCancel(ctx), loanID)
		return
	}
	s.notifier.OnLoanCreated(ctx, loanID)
}

func validateCreateInput(input CreateLoanInput, now time.Time) error {
	if strings.TrimSpace(input.RequestorExternalID) == "" {
		return apperrors.NewBadRequest("requestor id is required")
	}
	if input.ScheduledReturnDate.IsZero() {
		return apperrors.NewBadRequest("scheduled return date is required")
	}
	if input.ScheduledReturnDate.Before(now) {
		return apperrors.NewBadRequest("scheduled return date must not be in the past")
	}
	if len(input.Details) == 0 {
		return apperrors.NewBadRequest("a loan requires at least one detail")
	}
	for i, d := range input.Details {
		if strings.TrimSpace(d.ItemID) == "" {
			return apperrors.NewBadRequest(fmt.Sprintf("detail %d: item id is required", i))
		}
		if d.Quantity < 1 {
			return apperrors.NewBadRequest(fmt.Sprintf("detail %d: quantity must be at least 1", i))
		}
	}
	return nil
}

func exitConditionIDs(details []LoanDetailInput) []string {
	ids := make([]string, 0, len(details))
	for _, d := range details {
		if d.ExitConditionID != nil {
			ids = append(ids, *d.ExitConditionID)
		}
	}
	return ids
}

func trimmedPtr(value *string) *string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil
	}
	return stringPtr(strings.TrimSpace(*value))
}

func newLoanCode(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("LN-%s-%s", now.UTC().Format("20060102"), suffix)
}
