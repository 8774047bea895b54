package app

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/loandesk/internal/notifications"
	"github.com/charlesng35/loandesk/internal/services"
	"github.com/charlesng35/loandesk/pkg/mail"
)

// DispatcherOptions converts the retry policy into dispatcher options.
func (c NotificationConfig) DispatcherOptions() []notifications.DispatcherOption {
	opts := []notifications.DispatcherOption{}
	if c.MaxAttempts > 0 {
		opts = append(opts, notifications.WithMaxAttempts(c.MaxAttempts))
	}
	if c.SendTimeout > 0 {
		opts = append(opts, notifications.WithSendTimeout(c.SendTimeout))
	}
	if c.RetryBackoff >= 0 {
		opts = append(opts, notifications.WithBackoff(c.RetryBackoff))
	}
	return opts
}

// ServiceOptions converts the sweep settings into NotificationService options.
func (c NotificationConfig) ServiceOptions() []services.NotificationServiceOption {
	var opts []services.NotificationServiceOption
	if c.ReminderWindow > 0 {
		opts = append(opts, services.WithReminderWindow(c.ReminderWindow))
	}
	return opts
}

// AMQPSettings converts the queue section to the notifications package representation.
func (c NotificationConfig) AMQPSettings() notifications.AMQPConfig {
	return notifications.AMQPConfig{
		URL:        strings.TrimSpace(c.AMQP.URL),
		Exchange:   strings.TrimSpace(c.AMQP.Exchange),
		RoutingKey: strings.TrimSpace(c.AMQP.RoutingKey),
	}
}

// ChannelSet is the assembled list of delivery channels plus a closer for any
// connections they hold.
type ChannelSet struct {
	Channels []notifications.Channel
	closers  []func() error
}

// Close releases broker connections held by the channels.
func (s *ChannelSet) Close() error {
	if s == nil {
		return nil
	}
	var errs error
	for _, closeFn := range s.closers {
		errs = multierr.Append(errs, closeFn())
	}
	s.closers = nil
	return errs
}

// BuildNotificationChannels creates the channels named in cfg. The email channel
// falls back to the log channel when SMTP is disabled so notifications stay visible.
func BuildNotificationChannels(cfg Config, log *zap.Logger) (*ChannelSet, error) {
	set := &ChannelSet{}
	seen := map[string]bool{}

	names := cfg.Notifications.Channels
	if len(names) == 0 {
		names = []string{"log"}
	}

	add := func(ch notifications.Channel) {
		if seen[ch.Name()] {
			return
		}
		seen[ch.Name()] = true
		set.Channels = append(set.Channels, ch)
	}

	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		switch name {
		case "":
			continue
		case "log":
			add(notifications.NewLogChannel(log))
		case "email":
			if !cfg.Email.SMTP.Enabled {
				log.Warn("smtp disabled; email notifications are written to the log instead")
				add(notifications.NewLogChannel(log))
				continue
			}
			mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
			if err != nil {
				_ = set.Close()
				return nil, fmt.Errorf("notifications: email channel: %w", err)
			}
			ch, err := notifications.NewEmailChannel(mailer)
			if err != nil {
				_ = set.Close()
				return nil, err
			}
			add(ch)
		case "amqp":
			ch, closeFn, err := notifications.DialAMQP(cfg.Notifications.AMQPSettings())
			if err != nil {
				_ = set.Close()
				return nil, fmt.Errorf("notifications: amqp channel: %w", err)
			}
			set.closers = append(set.closers, closeFn)
			add(ch)
		default:
			_ = set.Close()
			return nil, fmt.Errorf("notifications: unknown channel %q", raw)
		}
	}

	if len(set.Channels) == 0 {
		return nil, errors.New("notifications: no delivery channel configured")
	}
	return set, nil
}
