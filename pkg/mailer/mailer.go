// Package mailer sends HTML email over SMTP.
package mailer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	mail "gopkg.in/mail.v2"
)

// ErrNotConfigured is returned by Send when no SMTP host is set.
var ErrNotConfigured = errors.New("smtp is not configured")

// Config holds SMTP settings.
type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
}

// Message is one outgoing email.
type Message struct {
	To      string
	ToName  string
	Subject string
	HTML    string
}

// Sender delivers a built message.
type Sender interface {
	DialAndSend(m ...*mail.Message) error
}

// Mailer sends email through an SMTP dialer.
type Mailer struct {
	cfg    Config
	sender Sender
	logger *zap.Logger
}

// New creates a mailer. With an empty host every Send fails with ErrNotConfigured.
func New(cfg Config, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Mailer{cfg: cfg, logger: logger}
	if cfg.Host != "" {
		m.sender = mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	}
	return m
}

// WithSender replaces the SMTP dialer.
func (m *Mailer) WithSender(s Sender) *Mailer {
	m.sender = s
	return m
}

func (m *Mailer) build(msg Message) *mail.Message {
	out := mail.NewMessage()
	out.SetAddressHeader("From", m.cfg.FromAddress, m.cfg.FromName)
	if msg.ToName != "" {
		out.SetAddressHeader("To", msg.To, msg.ToName)
	} else {
		out.SetHeader("To", msg.To)
	}
	out.SetHeader("Subject", msg.Subject)
	out.SetBody("text/html", msg.HTML)
	return out
}

// Send delivers msg. ctx is checked before dialing; the SMTP exchange itself
// is bounded by the dialer timeout.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if m.sender == nil {
		return ErrNotConfigured
	}
	if msg.To == "" {
		return errors.New("recipient is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.sender.DialAndSend(m.build(msg)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	m.logger.Debug("email sent", zap.String("subject", msg.Subject))
	return nil
}
