package channel

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/cyntientops/field-sync/internal/config"
	"github.com/cyntientops/field-sync/internal/model"
)

// Recipients are resolved from user IDs by the surrounding application; the
// channel itself only needs an address source.
type AddressResolver interface {
	EmailFor(ctx context.Context, userID string) (string, error)
}

type EmailChannel struct {
	dialer   *gomail.Dialer
	from     string
	resolver AddressResolver
}

func NewEmailChannel(cfg config.EmailConfig, resolver AddressResolver) *EmailChannel {
	return &EmailChannel{
		dialer:   gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:     cfg.From,
		resolver: resolver,
	}
}

func (c *EmailChannel) Name() string { return model.ChannelEmail }

func (c *EmailChannel) Send(ctx context.Context, n *model.Notification) error {
	to, err := c.resolver.EmailFor(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("failed to resolve email for user %s: %w", n.UserID, err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", c.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", n.Title)
	m.SetBody("text/plain", n.Message)

	if err := c.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
