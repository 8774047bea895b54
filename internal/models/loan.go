package models

import "time"

// LoanStatus is the lifecycle state of a loan.
type LoanStatus string

const (
	LoanStatusRequested    LoanStatus = "REQUESTED"
	LoanStatusApproved     LoanStatus = "APPROVED"
	LoanStatusDelivered    LoanStatus = "DELIVERED"
	LoanStatusReturned     LoanStatus = "RETURNED"
	LoanStatusReturnedLate LoanStatus = "RETURNED_LATE"
	LoanStatusCancelled    LoanStatus = "CANCELLED"
	LoanStatusExpired      LoanStatus = "EXPIRED"
)

// ActiveExcludedStatuses lists the statuses filtered out of "active" loan queries.
var ActiveExcludedStatuses = []LoanStatus{
	LoanStatusCancelled,
	LoanStatusReturned,
	LoanStatusReturnedLate,
	LoanStatusExpired,
}

var loanTransitions = map[LoanStatus][]LoanStatus{
	LoanStatusRequested: {LoanStatusApproved, LoanStatusCancelled, LoanStatusExpired},
	LoanStatusApproved:  {LoanStatusDelivered, LoanStatusCancelled, LoanStatusExpired},
	LoanStatusDelivered: {LoanStatusReturned, LoanStatusReturnedLate, LoanStatusCancelled, LoanStatusExpired},
}

// Valid reports whether s is a known status.
func (s LoanStatus) Valid() bool {
	switch s {
	case LoanStatusRequested, LoanStatusApproved, LoanStatusDelivered,
		LoanStatusReturned, LoanStatusReturnedLate, LoanStatusCancelled, LoanStatusExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible from s.
func (s LoanStatus) IsTerminal() bool {
	return s.Valid() && len(loanTransitions[s]) == 0
}

// IsActive reports whether a loan in status s is still in flight.
func (s LoanStatus) IsActive() bool {
	for _, excluded := range ActiveExcludedStatuses {
		if s == excluded {
			return false
		}
	}
	return s.Valid()
}

// CanTransitionTo reports whether next directly follows s in the lifecycle.
func (s LoanStatus) CanTransitionTo(next LoanStatus) bool {
	for _, candidate := range loanTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Loan is the aggregate root of one borrowing transaction.
type Loan struct {
	BaseModel

	LoanCode            string     `gorm:"type:varchar(32);uniqueIndex;not null" json:"loan_code"`
	RequestDate         time.Time  `gorm:"not null" json:"request_date"`
	ApprovalDate        *time.Time `json:"approval_date,omitempty"`
	DeliveryDate        *time.Time `json:"delivery_date,omitempty"`
	ScheduledReturnDate time.Time  `gorm:"not null;index" json:"scheduled_return_date"`
	ActualReturnDate    *time.Time `json:"actual_return_date,omitempty"`

	Status           LoanStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	RequestorID      string     `gorm:"type:varchar(36);not null;index" json:"requestor_id"`
	ApproverID       *string    `gorm:"type:varchar(36)" json:"approver_id,omitempty"`
	ReceivedByID     *string    `gorm:"type:varchar(36)" json:"received_by_id,omitempty"`
	Reason           string     `gorm:"type:text" json:"reason"`
	AssociatedEvent  string     `gorm:"type:varchar(255)" json:"associated_event,omitempty"`
	ExternalLocation string     `gorm:"type:varchar(255)" json:"external_location,omitempty"`
	Notes            string     `gorm:"type:text" json:"notes,omitempty"`
	ReminderSent     bool       `gorm:"not null;default:false;index" json:"reminder_sent"`

	Details []LoanDetail `gorm:"-" json:"details"`
}
