package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charlesng35/loandesk/pkg/mail"
)

// EmailChannel delivers notifications to the borrower's mailbox.
type EmailChannel struct {
	mailer mail.Mailer
}

// NewEmailChannel wraps a mailer.
func NewEmailChannel(mailer mail.Mailer) (*EmailChannel, error) {
	if mailer == nil {
		return nil, errors.New("email channel: mailer is required")
	}
	return &EmailChannel{mailer: mailer}, nil
}

// Name implements Channel.
func (c *EmailChannel) Name() string { return "email" }

// Send implements Channel.
func (c *EmailChannel) Send(ctx context.Context, msg Message) error {
	to := strings.TrimSpace(msg.RecipientEmail)
	if to == "" {
		return fmt.Errorf("email channel: recipient %s has no email address: %w", msg.RecipientID, ErrPermanent)
	}

	err := c.mailer.Send(ctx, mail.Message{
		To:      []string{to},
		Subject: msg.Title,
		Body:    msg.Content,
	})
	if errors.Is(err, mail.ErrSMTPDisabled) {
		return fmt.Errorf("email channel: %w: %w", err, ErrPermanent)
	}
	return err
}
