package app

import "github.com/charlesng35/loandesk/internal/services"

// ServiceOptions converts the loan policy into LoanService options.
func (c LoanPolicyConfig) ServiceOptions() []services.LoanServiceOption {
	opts := []services.LoanServiceOption{
		services.WithItemAvailabilityCheck(c.CheckItemAvailability),
		services.WithAsyncNotifications(c.AsyncNotifications),
	}
	if c.ExternalTimeout > 0 {
		opts = append(opts, services.WithExternalTimeout(c.ExternalTimeout))
	}
	return opts
}
