package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoanStatusTransitions(t *testing.T) {
	allowed := map[LoanStatus][]LoanStatus{
		LoanStatusRequested: {LoanStatusApproved, LoanStatusCancelled, LoanStatusExpired},
		LoanStatusApproved:  {LoanStatusDelivered, LoanStatusCancelled, LoanStatusExpired},
		LoanStatusDelivered: {LoanStatusReturned, LoanStatusReturnedLate, LoanStatusCancelled, LoanStatusExpired},
	}
	all := []LoanStatus{
		LoanStatusRequested, LoanStatusApproved, LoanStatusDelivered,
		LoanStatusReturned, LoanStatusReturnedLate, LoanStatusCancelled, LoanStatusExpired,
	}

	for _, from := range all {
		for _, to := range all {
			expected := false
			for _, candidate := range allowed[from] {
				if candidate == to {
					expected = true
				}
			}
			require.Equal(t, expected, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestLoanStatusTerminalAndActive(t *testing.T) {
	for _, status := range []LoanStatus{LoanStatusReturned, LoanStatusReturnedLate, LoanStatusCancelled, LoanStatusExpired} {
		require.True(t, status.IsTerminal(), status)
		require.False(t, status.IsActive(), status)
	}
	for _, status := range []LoanStatus{LoanStatusRequested, LoanStatusApproved, LoanStatusDelivered} {
		require.False(t, status.IsTerminal(), status)
		require.True(t, status.IsActive(), status)
	}

	unknown := LoanStatus("LOST")
	require.False(t, unknown.Valid())
	require.False(t, unknown.IsTerminal())
	require.False(t, unknown.IsActive())
}

func TestBorrowerEligibility(t *testing.T) {
	require.True(t, Borrower{Status: BorrowerStatusActive}.Eligible())
	require.False(t, Borrower{Status: BorrowerStatusDefaulter}.Eligible())
	require.False(t, Borrower{Status: BorrowerStatusSuspended}.Eligible())
}

func TestConditionIsDamaged(t *testing.T) {
	require.True(t, Condition{Tag: ConditionTagDamaged}.IsDamaged())
	require.False(t, Condition{Tag: ConditionTagFair}.IsDamaged())
}

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	require.NoError(t, base.BeforeCreate(nil))
	require.NotEmpty(t, base.ID)

	kept := BaseModel{ID: "fixed"}
	require.NoError(t, kept.BeforeCreate(nil))
	require.Equal(t, "fixed", kept.ID)
}
