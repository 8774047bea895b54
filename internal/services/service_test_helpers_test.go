package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/loandesk/internal/database"
	"github.com/charlesng35/loandesk/internal/database/testutil"
	"github.com/charlesng35/loandesk/internal/models"
	"github.com/charlesng35/loandesk/internal/notifications"
)

var testEpoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(now time.Time) *testClock {
	return &testClock{now: now}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingChannel struct {
	mu   sync.Mutex
	name string
	fail bool
	sent []notifications.Message
}

func (r *recordingChannel) Name() string { return r.name }

func (r *recordingChannel) Send(_ context.Context, msg notifications.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("channel unavailable")
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingChannel) Sent() []notifications.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notifications.Message(nil), r.sent...)
}

type recordingNotifier struct {
	mu      sync.Mutex
	created []string
}

func (r *recordingNotifier) OnLoanCreated(_ context.Context, loanID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, loanID)
}

type loanFixture struct {
	db            *gorm.DB
	clock         *testClock
	borrowers     *GormBorrowerDirectory
	items         *GormItemGateway
	loans         *LoanService
	returns       *ReturnService
	notifications *NotificationService
	channel       *recordingChannel
	borrower      *models.Borrower
	projector     *models.Item
	laptop        *models.Item
	spares        int
}

func newLoanFixture(t *testing.T, opts ...LoanServiceOption) *loanFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	clock := newTestClock(testEpoch)

	borrowers, err := NewBorrowerDirectory(db)
	require.NoError(t, err)
	items, err := NewItemGateway(db)
	require.NoError(t, err)

	loanOpts := append([]LoanServiceOption{WithLoanClock(clock.Now)}, opts...)
	loans, err := NewLoanService(db, borrowers, items, loanOpts...)
	require.NoError(t, err)

	returns, err := NewReturnService(db, borrowers, items, WithReturnClock(clock.Now))
	require.NoError(t, err)

	channel := &recordingChannel{name: "test"}
	dispatcher, err := notifications.NewDispatcher([]notifications.Channel{channel},
		notifications.WithMaxAttempts(1), notifications.WithBackoff(0), notifications.WithClock(clock.Now))
	require.NoError(t, err)
	notifier, err := NewNotificationService(db, dispatcher, borrowers, items, WithNotificationClock(clock.Now))
	require.NoError(t, err)

	return &loanFixture{
		db:            db,
		clock:         clock,
		borrowers:     borrowers,
		items:         items,
		loans:         loans,
		returns:       returns,
		notifications: notifier,
		channel:       channel,
		borrower:      testutil.MustCreateBorrower(t, db, "DOC-100", "Ana Lima"),
		projector:     testutil.MustCreateItem(t, db, "PRJ-1", "Projector"),
		laptop:        testutil.MustCreateItem(t, db, "LAP-1", "Laptop"),
	}
}

func (f *loanFixture) createLoan(t *testing.T, due time.Time, details ...LoanDetailInput) *models.Loan {
	t.Helper()
	if len(details) == 0 {
		details = []LoanDetailInput{{ItemID: f.projector.ID, Quantity: 1}}
	}
	loan, err := f.loans.Create(context.Background(), CreateLoanInput{
		ScheduledReturnDate: due,
		RequestorExternalID: f.borrower.ExternalID,
		Reason:              "Workshop",
		Details:             details,
		BlockBlacklisted:    true,
	})
	require.NoError(t, err)
	return loan
}

// spareDetail registers a new item so that several loans can be out at once.
func (f *loanFixture) spareDetail(t *testing.T) LoanDetailInput {
	t.Helper()
	f.spares++
	item := testutil.MustCreateItem(t, f.db, fmt.Sprintf("SPR-%d", f.spares), fmt.Sprintf("Spare %d", f.spares))
	return LoanDetailInput{ItemID: item.ID, Quantity: 1}
}

// deliveredLoan walks a fresh loan through approval and delivery at the current clock time.
func (f *loanFixture) deliveredLoan(t *testing.T, due time.Time, details ...LoanDetailInput) *models.Loan {
	t.Helper()
	loan := f.createLoan(t, due, details...)

	_, err := f.loans.ApproveLoan(context.Background(), ApproveLoanInput{LoanID: loan.ID, ApproverID: "staff-1"})
	require.NoError(t, err)

	delivered, err := f.loans.DeliverLoan(context.Background(), DeliverLoanInput{LoanID: loan.ID, DeliveryDate: f.clock.Now()})
	require.NoError(t, err)
	return delivered
}

func (f *loanFixture) reloadLoan(t *testing.T, id string) models.Loan {
	t.Helper()
	var loan models.Loan
	require.NoError(t, f.db.First(&loan, "id = ?", id).Error)
	return loan
}

func (f *loanFixture) reloadBorrower(t *testing.T) models.Borrower {
	t.Helper()
	var borrower models.Borrower
	require.NoError(t, f.db.First(&borrower, "id = ?", f.borrower.ID).Error)
	return borrower
}

func (f *loanFixture) itemAvailable(t *testing.T, id string) bool {
	t.Helper()
	var item models.Item
	require.NoError(t, f.db.First(&item, "id = ?", id).Error)
	return item.AvailableForLoan
}

var (
	conditionGood    = database.ConditionGoodID
	conditionDamaged = database.ConditionDamagedID
)
