package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Message is a rendered notification ready for delivery.
type Message struct {
	NotificationID string            `json:"notification_id"`
	Type           string            `json:"type"`
	RecipientID    string            `json:"recipient_id"`
	RecipientName  string            `json:"recipient_name,omitempty"`
	RecipientEmail string            `json:"recipient_email,omitempty"`
	EntityType     string            `json:"entity_type"`
	EntityID       string            `json:"entity_id"`
	Title          string            `json:"title"`
	Content        string            `json:"content"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// Channel delivers messages through one medium.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Result is the outcome of delivering a message through one channel.
type Result struct {
	Channel     string
	Attempts    int
	Err         error
	AttemptedAt time.Time
}

// Delivered reports whether the channel accepted the message.
func (r Result) Delivered() bool {
	return r.Err == nil
}

// Dispatcher fans a message out to every configured channel, retrying each
// one independently.
type Dispatcher struct {
	channels    []Channel
	maxAttempts int
	timeout     time.Duration
	backoff     time.Duration
	now         func() time.Time
}

// DispatcherOption customises a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMaxAttempts sets how many times each channel is tried.
func WithMaxAttempts(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// WithSendTimeout bounds every individual send.
func WithSendTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithBackoff sets the pause between attempts on the same channel.
func WithBackoff(backoff time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if backoff >= 0 {
			d.backoff = backoff
		}
	}
}

// WithClock overrides the clock used for attempt timestamps.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDispatcher constructs a Dispatcher over channels.
func NewDispatcher(channels []Channel, opts ...DispatcherOption) (*Dispatcher, error) {
	if len(channels) == 0 {
		return nil, errors.New("notifications: at least one channel is required")
	}
	seen := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		if ch == nil {
			return nil, errors.New("notifications: nil channel")
		}
		name := strings.TrimSpace(ch.Name())
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("notifications: duplicate channel %q", name)
		}
		seen[name] = struct{}{}
	}

	d := &Dispatcher{
		channels:    channels,
		maxAttempts: 3,
		timeout:     10 * time.Second,
		backoff:     500 * time.Millisecond,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Channels returns the configured channel names in order.
func (d *Dispatcher) Channels() []string {
	names := make([]string, len(d.channels))
	for i, ch := range d.channels {
		names[i] = ch.Name()
	}
	return names
}

// Dispatch sends msg through every channel concurrently and returns one Result
// per channel, in channel order, plus the combined error of the channels that failed.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) ([]Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	results := make([]Result, len(d.channels))
	var g errgroup.Group
	for i, ch := range d.channels {
		g.Go(func() error {
			results[i] = d.deliver(ctx, ch, msg)
			return nil
		})
	}
	_ = g.Wait()

	var errs error
	for _, result := range results {
		if result.Err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", result.Channel, result.Err))
		}
	}
	return results, errs
}

func (d *Dispatcher) deliver(ctx context.Context, ch Channel, msg Message) Result {
	result := Result{Channel: ch.Name()}
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		result.Attempts = attempt
		result.AttemptedAt = d.now().UTC()

		sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
		result.Err = ch.Send(sendCtx, msg)
		cancel()

		if result.Err == nil || attempt == d.maxAttempts {
			break
		}
		if errors.Is(result.Err, ErrPermanent) {
			break
		}

		select {
		case <-ctx.Done():
			result.Err = multierr.Append(result.Err, ctx.Err())
			return result
		case <-time.After(d.backoff):
		}
	}
	return result
}

// ErrPermanent marks a failure that retrying cannot fix.
var ErrPermanent = errors.New("notifications: permanent failure")
