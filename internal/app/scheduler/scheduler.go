package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/loandesk/internal/cache"
	"github.com/charlesng35/loandesk/internal/services"
	"github.com/charlesng35/loandesk/pkg/logger"
)

const (
	defaultSpec    = "@midnight"
	defaultLockTTL = 30 * time.Minute
	lockKey        = "notification-sweeps"
)

// ErrSweepInProgress is returned when RunOnce is called while this process is already sweeping.
var ErrSweepInProgress = errors.New("scheduler: sweep already in progress")

// Sweeper performs the daily notification sweeps.
type Sweeper interface {
	SweepReminders(ctx context.Context) (services.SweepResult, error)
	SweepExpirations(ctx context.Context) (services.SweepResult, error)
}

// Report describes one scheduled run.
type Report struct {
	StartedAt   time.Time            `json:"started_at"`
	FinishedAt  time.Time            `json:"finished_at"`
	Skipped     bool                 `json:"skipped"`
	Reminders   services.SweepResult `json:"reminders"`
	Expirations services.SweepResult `json:"expirations"`
}

// Scheduler runs the reminder and expiration sweeps once a day.
type Scheduler struct {
	sweeper Sweeper
	cron    *cron.Cron
	locker  cache.Locker
	lockTTL time.Duration
	spec    string
	now     func() time.Time
	log     *zap.Logger

	running sync.Mutex
}

// Option customises the Scheduler.
type Option func(*Scheduler)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithNow overrides the clock used for run timestamps.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSpec overrides the cron specification of the daily run.
func WithSpec(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.spec = spec
		}
	}
}

// WithLocker makes runs take a shared lease first so only one replica sweeps.
func WithLocker(locker cache.Locker) Option {
	return func(s *Scheduler) {
		s.locker = locker
	}
}

// WithLockTTL bounds how long a crashed replica can hold the sweep lease.
func WithLockTTL(ttl time.Duration) Option {
	return func(s *Scheduler) {
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// New constructs a Scheduler. Start must be called to register the cron job.
func New(sweeper Sweeper, opts ...Option) (*Scheduler, error) {
	if sweeper == nil {
		return nil, errors.New("scheduler: sweeper is required")
	}

	s := &Scheduler{
		sweeper: sweeper,
		spec:    defaultSpec,
		lockTTL: defaultLockTTL,
		now:     time.Now,
		log:     logger.WithModule("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cron == nil {
		cronLog := zapCronLogger{log: s.log}
		s.cron = cron.New(cron.WithLogger(cronLog), cron.WithChain(cron.Recover(cronLog)))
	}
	return s, nil
}

// Start registers the daily job and launches the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.runScheduled); err != nil {
		return fmt.Errorf("scheduler: register %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.log.Info("notification sweeps scheduled", zap.String("spec", s.spec))
	return nil
}

// Stop halts the underlying scheduler; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

func (s *Scheduler) runScheduled() {
	report, err := s.RunOnce(context.Background())
	switch {
	case errors.Is(err, ErrSweepInProgress):
		s.log.Info("previous sweep still running; skipping")
	case err != nil:
		s.log.Warn("notification sweeps failed", zap.Error(err))
	case report.Skipped:
		s.log.Info("sweep lease held by another replica; skipping")
	}
}

// RunOnce executes the reminder sweep and then the expiration sweep. A failure
// in the first does not prevent the second; both errors are returned together.
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !s.running.TryLock() {
		return Report{}, ErrSweepInProgress
	}
	defer s.running.Unlock()

	report := Report{StartedAt: s.now()}

	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, lockKey, s.lockTTL)
		if err != nil {
			return report, fmt.Errorf("scheduler: acquire lease: %w", err)
		}
		if !ok {
			report.Skipped = true
			report.FinishedAt = s.now()
			return report, nil
		}
		defer func() {
			if err := s.locker.Unlock(context.WithoutCancel(ctx), lockKey, token); err != nil {
				s.log.Warn("release sweep lease failed", zap.Error(err))
			}
		}()
	}

	var errs error

	reminders, err := runSweep(ctx, s.sweeper.SweepReminders)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("reminder sweep: %w", err))
	}
	report.Reminders = reminders

	expirations, err := runSweep(ctx, s.sweeper.SweepExpirations)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("expiration sweep: %w", err))
	}
	report.Expirations = expirations

	report.FinishedAt = s.now()
	return report, errs
}

// runSweep turns a panicking sweep into an error so the next sweep still runs.
func runSweep(ctx context.Context, sweep func(context.Context) (services.SweepResult, error)) (result services.SweepResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return sweep(ctx)
}

// zapCronLogger routes cron's own messages, including recovered job panics, to zap.
type zapCronLogger struct {
	log *zap.Logger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Sugar().Errorw(msg, append([]any{"error", err}, keysAndValues...)...)
}
