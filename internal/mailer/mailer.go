package mailer

import (
	"context"
	"fmt"

	"atelier-service/config"
	"atelier-service/internal/util"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Message is a rendered HTML email
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Mailer delivers messages over SMTP. With no SMTP host configured it only
// logs what it would have sent.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
	logger *zap.Logger
}

// New creates a mailer from the SMTP settings
func New(cfg config.MailConfig) *Mailer {
	m := &Mailer{from: cfg.From, logger: util.GetLogger()}
	if cfg.Host != "" {
		m.dialer = gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	}
	return m
}

// Send delivers one message. gomail has no context support, so ctx is only
// checked before dialing.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.To == "" {
		return fmt.Errorf("mail %q has no recipient", msg.Subject)
	}

	if m.dialer == nil {
		m.logger.Info("SMTP disabled, skipping email",
			zap.String("to", msg.To),
			zap.String("subject", msg.Subject))
		return nil
	}

	gm := gomail.NewMessage()
	gm.SetHeader("From", m.from)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/html", msg.HTML)

	if err := m.dialer.DialAndSend(gm); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", msg.To, err)
	}
	return nil
}
