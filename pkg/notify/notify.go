// Package notify delivers user-facing notifications about loans and reviews.
package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Message is a single plain-text notification.
type Message struct {
	Subject string
	Body    string
}

// Notifier sends messages. Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Nop discards every message.
type Nop struct{}

func (Nop) Notify(context.Context, Message) error { return nil }

// SMTPConfig holds the mail server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPNotifier sends every message as an email to a fixed recipient list.
type SMTPNotifier struct {
	dialer sender
	from   string
	to     []string
	logger *zap.Logger
}

// NewSMTPNotifier creates an SMTPNotifier. A connection is opened per message.
func NewSMTPNotifier(cfg SMTPConfig, logger *zap.Logger) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.From == "" || len(cfg.To) == 0 {
		return nil, fmt.Errorf("smtp from and to addresses are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SMTPNotifier{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		to:     cfg.To,
		logger: logger,
	}, nil
}

// Notify sends msg. The context is only checked before dialing; gomail has no
// cancellation of its own.
func (n *SMTPNotifier) Notify(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", n.to...)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	if err := n.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send %q to %s: %w", msg.Subject, strings.Join(n.to, ","), err)
	}

	n.logger.Debug("notification sent",
		zap.String("op", "notify.SMTPNotifier.Notify"),
		zap.String("subject", msg.Subject))
	return nil
}
