package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/loandesk/internal/database"
	"github.com/charlesng35/loandesk/internal/models"
	"github.com/charlesng35/loandesk/internal/notifications"
	apperrors "github.com/charlesng35/loandesk/pkg/errors"
	"github.com/charlesng35/loandesk/pkg/logger"
	"github.com/charlesng35/loandesk/pkg/metrics"
)

const (
	notificationEntityLoan = "loan"
	defaultReminderWindow  = 5 * 24 * time.Hour
	dueDateLayout          = "2006-01-02"
)

// SweepResult summarises one sweep run.
type SweepResult struct {
	Matched int `json:"matched"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

// NotificationServiceOption customises NotificationService.
type NotificationServiceOption func(*NotificationService)

// WithNotificationClock overrides the clock used by sweeps (test helper).
func WithNotificationClock(clock func() time.Time) NotificationServiceOption {
	return func(s *NotificationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithReminderWindow sets how far ahead of the due date reminders go out.
func WithReminderWindow(window time.Duration) NotificationServiceOption {
	return func(s *NotificationService) {
		if window > 0 {
			s.reminderWindow = window
		}
	}
}

// WithNotificationLogger overrides the logger (test helper).
func WithNotificationLogger(log *zap.Logger) NotificationServiceOption {
	return func(s *NotificationService) {
		if log != nil {
			s.log = log
		}
	}
}

// NotificationService renders and dispatches loan notifications and records
// every delivery attempt. It never changes a loan's status.
type NotificationService struct {
	db             *gorm.DB
	dispatcher     *notifications.Dispatcher
	borrowers      BorrowerDirectory
	items          ItemGateway
	details        *LoanDetailStore
	now            func() time.Time
	reminderWindow time.Duration
	log            *zap.Logger
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(db *gorm.DB, dispatcher *notifications.Dispatcher, borrowers BorrowerDirectory, items ItemGateway, opts ...NotificationServiceOption) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	if dispatcher == nil {
		return nil, errors.New("notification service: dispatcher is required")
	}
	if borrowers == nil {
		return nil, errors.New("notification service: borrower directory is required")
	}
	if items == nil {
		return nil, errors.New("notification service: item gateway is required")
	}

	details, err := NewLoanDetailStore(db)
	if err != nil {
		return nil, err
	}

	svc := &NotificationService{
		db:             db,
		dispatcher:     dispatcher,
		borrowers:      borrowers,
		items:          items,
		details:        details,
		now:            time.Now,
		reminderWindow: defaultReminderWindow,
		log:            logger.WithModule("notifications"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// OnLoanCreated implements LoanNotifier. Failures are logged and never returned.
func (s *NotificationService) OnLoanCreated(ctx context.Context, loanID string) {
	if _, err := s.NotifyLoanCreated(ctx, loanID); err != nil {
		s.log.Warn("loan created notification failed", zap.String("loan_id", loanID), zap.Error(err))
	}
}

// NotifyLoanCreated sends the LOAN notification for loanID.
func (s *NotificationService) NotifyLoanCreated(ctx context.Context, loanID string) (*models.Notification, error) {
	ctx = ensureContext(ctx)

	loan, err := loadLoan(ctx, s.db, loanID, false)
	if err != nil {
		return nil, err
	}
	return s.notify(ctx, loan, models.TemplateTypeLoan, nil, nil)
}

// SweepReminders notifies every delivered loan due within the reminder window that
// has not been reminded yet. Each loan is reminded at most once.
func (s *NotificationService) SweepReminders(ctx context.Context) (SweepResult, error) {
	ctx = ensureContext(ctx)
	started := time.Now()
	now := s.now().UTC()

	var loans []models.Loan
	if err := s.db.WithContext(ctx).
		Where("status = ? AND reminder_sent = ?", models.LoanStatusDelivered, false).
		Where("scheduled_return_date >= ? AND scheduled_return_date <= ?", now, now.Add(s.reminderWindow)).
		Order("scheduled_return_date ASC").
		Find(&loans).Error; err != nil {
		return SweepResult{}, fmt.Errorf("notification service: select reminder loans: %w", err)
	}

	result := s.sweep(ctx, "reminder", loans, func(loan *models.Loan) error {
		extra := map[string]string{
			"daysRemaining": strconv.Itoa(ceilDays(loan.ScheduledReturnDate.Sub(now))),
		}
		_, err := s.notify(ctx, loan, models.TemplateTypeReturn, extra, func(tx *gorm.DB) error {
			return tx.Model(&models.Loan{}).
				Where("id = ? AND reminder_sent = ?", loan.ID, false).
				Update("reminder_sent", true).Error
		})
		return err
	})

	s.finishSweep(ctx, "reminder", database.LastReminderSweepSetting, now, started, result)
	return result, nil
}

// SweepExpirations notifies every delivered loan past its due date. Overdue loans
// are notified again on every run.
func (s *NotificationService) SweepExpirations(ctx context.Context) (SweepResult, error) {
	ctx = ensureContext(ctx)
	started := time.Now()
	now := s.now().UTC()

	var loans []models.Loan
	if err := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_return_date < ?", models.LoanStatusDelivered, now).
		Order("scheduled_return_date ASC").
		Find(&loans).Error; err != nil {
		return SweepResult{}, fmt.Errorf("notification service: select overdue loans: %w", err)
	}

	result := s.sweep(ctx, "expiration", loans, func(loan *models.Loan) error {
		extra := map[string]string{
			"overdueDays": strconv.Itoa(ceilDays(now.Sub(loan.ScheduledReturnDate))),
		}
		_, err := s.notify(ctx, loan, models.TemplateTypeExpiration, extra, nil)
		return err
	})

	s.finishSweep(ctx, "expiration", database.LastExpirationSweepSetting, now, started, result)
	return result, nil
}

// ListForLoan returns the notifications recorded for a loan with their delivery records.
func (s *NotificationService) ListForLoan(ctx context.Context, loanID string) ([]models.Notification, error) {
	ctx = ensureContext(ctx)

	if _, err := loadLoan(ctx, s.db, loanID, false); err != nil {
		return nil, err
	}

	var rows []models.Notification
	if err := s.db.WithContext(ctx).
		Preload("Deliveries", func(db *gorm.DB) *gorm.DB {
			return db.Order("attempted_at ASC")
		}).
		Where("entity_type = ? AND entity_id = ?", notificationEntityLoan, loanID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("notification service: list notifications: %w", err)
	}
	return rows, nil
}

func (s *NotificationService) sweep(ctx context.Context, name string, loans []models.Loan, fn func(*models.Loan) error) SweepResult {
	result := SweepResult{Matched: len(loans)}
	for i := range loans {
		if ctx.Err() != nil {
			result.Failed += len(loans) - i
			s.log.Warn("sweep interrupted", zap.String("sweep", name), zap.Error(ctx.Err()))
			break
		}
		loan := &loans[i]
		if err := fn(loan); err != nil {
			result.Failed++
			s.log.Warn("sweep notification failed", append(logger.LoanFields(loan.ID, loan.LoanCode),
				zap.String("sweep", name), zap.Error(err))...)
			continue
		}
		result.Sent++
	}
	return result
}

func (s *NotificationService) finishSweep(ctx context.Context, name, settingKey string, now, started time.Time, result SweepResult) {
	metrics.SweepDuration.WithLabelValues(name).Observe(time.Since(started).Seconds())
	if err := database.RecordSweepRun(ctx, s.db, settingKey, now); err != nil {
		s.log.Warn("record sweep run failed", zap.String("sweep", name), zap.Error(err))
	}
	s.log.Info("sweep finished",
		zap.String("sweep", name),
		zap.Int("matched", result.Matched),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed))
}

// notify renders the template for kind, dispatches it, and records the notification
// with its delivery records. afterRecord runs in the recording transaction only when
// at least one channel delivered the message.
func (s *NotificationService) notify(ctx context.Context, loan *models.Loan, kind models.TemplateType, extra map[string]string, afterRecord func(tx *gorm.DB) error) (*models.Notification, error) {
	template, err := s.loadTemplate(ctx, kind)
	if err != nil {
		return nil, err
	}
	borrower, err := s.borrowers.Get(ctx, loan.RequestorID)
	if err != nil {
		return nil, err
	}
	vars, err := s.loanVars(ctx, loan, borrower)
	if err != nil {
		return nil, err
	}
	for key, value := range extra {
		vars[key] = value
	}

	metadata, err := json.Marshal(vars)
	if err != nil {
		return nil, fmt.Errorf("notification service: marshal metadata: %w", err)
	}

	now := s.now().UTC()
	notification := &models.Notification{
		BaseModel:   models.BaseModel{ID: uuid.NewString()},
		Type:        kind,
		RecipientID: borrower.ID,
		EntityType:  notificationEntityLoan,
		EntityID:    loan.ID,
		Title:       RenderTemplate(template.Title, vars),
		Content:     RenderTemplate(template.Body, vars),
		Metadata:    datatypes.JSON(metadata),
	}

	results, dispatchErr := s.dispatcher.Dispatch(ctx, notifications.Message{
		NotificationID: notification.ID,
		Type:           string(kind),
		RecipientID:    borrower.ID,
		RecipientName:  borrower.FullName,
		RecipientEmail: borrower.Email,
		EntityType:     notificationEntityLoan,
		EntityID:       loan.ID,
		Title:          notification.Title,
		Content:        notification.Content,
		Metadata:       vars,
		CreatedAt:      now,
	})

	records := make([]models.DeliveryRecord, 0, len(results))
	for _, r := range results {
		record := models.DeliveryRecord{
			NotificationID: notification.ID,
			Channel:        r.Channel,
			Status:         models.DeliveryStatusSent,
			Attempts:       r.Attempts,
			AttemptedAt:    r.AttemptedAt,
		}
		if !r.Delivered() {
			record.Status = models.DeliveryStatusFailed
			record.Error = r.Err.Error()
		} else {
			notification.Delivered = true
		}
		metrics.Notifications.WithLabelValues(string(kind), r.Channel, strings.ToLower(string(record.Status))).Inc()
		records = append(records, record)
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Deliveries").Create(notification).Error; err != nil {
			return err
		}
		if len(records) > 0 {
			if err := tx.Create(&records).Error; err != nil {
				return err
			}
		}
		if notification.Delivered && afterRecord != nil {
			return afterRecord(tx)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("notification service: record notification: %w", err)
	}
	notification.Deliveries = records

	if !notification.Delivered {
		return notification, fmt.Errorf("notification service: deliver %s notification: %w", kind, dispatchErr)
	}
	return notification, nil
}

func (s *NotificationService) loadTemplate(ctx context.Context, kind models.TemplateType) (*models.NotificationTemplate, error) {
	var template models.NotificationTemplate
	if err := s.db.WithContext(ctx).First(&template, "type = ?", kind).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("notification template %s not found", kind)
		}
		return nil, fmt.Errorf("notification service: load template: %w", err)
	}
	return &template, nil
}

// loanVars builds the placeholders shared by every loan template.
func (s *NotificationService) loanVars(ctx context.Context, loan *models.Loan, borrower *models.Borrower) (map[string]string, error) {
	details, err := s.details.ListByLoan(ctx, loan.ID)
	if err != nil {
		return nil, err
	}
	if len(details) == 0 {
		return nil, fmt.Errorf("notification service: loan %s has no details", loan.ID)
	}

	itemIDs := make([]string, len(details))
	for i, d := range details {
		itemIDs[i] = d.ItemID
	}
	names, err := s.items.Names(ctx, itemIDs)
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"loanCode":  loan.LoanCode,
		"userName":  borrower.FullName,
		"equipment": describeEquipment(details, names),
		"dueDate":   loan.ScheduledReturnDate.UTC().Format(dueDateLayout),
	}, nil
}

func describeEquipment(details []models.LoanDetail, names map[string]string) string {
	parts := make([]string, 0, len(details))
	for _, d := range details {
		name := defaultIfEmpty(names[d.ItemID], d.ItemID)
		if d.Quantity > 1 {
			name = fmt.Sprintf("%s x%d", name, d.Quantity)
		}
		parts = append(parts, name)
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

// ceilDays rounds a duration up to whole days.
func ceilDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}
