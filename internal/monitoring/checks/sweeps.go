package checks

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/loandesk/internal/database"
	"github.com/charlesng35/loandesk/internal/monitoring"
)

// DefaultSweepMaxAge tolerates one missed daily run before reporting degradation.
const DefaultSweepMaxAge = 48 * time.Hour

// Sweeps verifies that the reminder and expiration sweeps completed recently.
// A deployment that has never swept yet is reported as up.
func Sweeps(db *gorm.DB, maxAge time.Duration, now func() time.Time) monitoring.Check {
	if maxAge <= 0 {
		maxAge = DefaultSweepMaxAge
	}
	if now == nil {
		now = time.Now
	}

	keys := map[string]string{
		"reminders":   database.LastReminderSweepSetting,
		"expirations": database.LastExpirationSweepSetting,
	}

	return monitoring.Check{Name: "sweeps", Run: func(ctx context.Context) monitoring.ProbeResult {
		var stale []string
		for _, name := range []string{"reminders", "expirations"} {
			last, err := database.LastSweepRun(ctx, db, keys[name])
			if err != nil {
				return monitoring.ResultFromError(err)
			}
			if last.IsZero() {
				continue
			}
			if age := now().Sub(last); age > maxAge {
				stale = append(stale, name+" last ran "+last.UTC().Format(time.RFC3339))
			}
		}
		if len(stale) > 0 {
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: strings.Join(stale, "; ")}
		}
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	}}
}
