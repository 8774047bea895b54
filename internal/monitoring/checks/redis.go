package checks

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/charlesng35/loandesk/internal/monitoring"
)

// Redis returns a readiness probe for the sweep lease backend. A nil client
// means Redis is disabled or fell back to the database, which is reported as up.
func Redis(client *redis.Client) monitoring.Check {
	return monitoring.Check{Name: "redis", Run: func(ctx context.Context) monitoring.ProbeResult {
		if client == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "redis disabled; sweep lease held in the database"}
		}
		return monitoring.ResultFromError(client.Ping(ctx).Err())
	}}
}
