// Package mailer delivers plain-text mail over SMTP.
package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"lab-booking-backend/config"
)

// Mailer sends a message to one or more recipients.
type Mailer interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// SMTPMailer sends through the configured SMTP server. A new connection is
// opened per message.
type SMTPMailer struct {
	cfg config.MailConfig
}

// New returns an SMTP mailer when mail is enabled, otherwise a mailer that
// only logs.
func New(cfg config.MailConfig, logger *zap.Logger) Mailer {
	if !cfg.Enabled {
		return &LogMailer{logger: logger.Named("mailer")}
	}
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) buildMessage(to []string, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.FromFormat(m.cfg.FromName, m.cfg.FromAddress); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(to...); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	if err := msg.ReplyTo(m.cfg.FromAddress); err != nil {
		return nil, fmt.Errorf("invalid reply-to address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

func (m *SMTPMailer) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTimeout(60 * time.Second),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	if m.cfg.SSL {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	return mail.NewClient(m.cfg.Host, opts...)
}

// Send implements Mailer.
func (m *SMTPMailer) Send(ctx context.Context, to []string, subject, body string) error {
	if len(to) == 0 {
		return nil
	}
	msg, err := m.buildMessage(to, subject, body)
	if err != nil {
		return err
	}
	c, err := m.client()
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// LogMailer writes messages to the log instead of sending them. It is used
// when mail is disabled.
type LogMailer struct {
	logger *zap.Logger
}

// Send implements Mailer.
func (m *LogMailer) Send(_ context.Context, to []string, subject, body string) error {
	m.logger.Info("mail disabled, message not sent",
		zap.Strings("to", to),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(body)),
	)
	return nil
}

// OTPSender formats one-time codes and hands them to a Mailer.
type OTPSender struct {
	Mailer Mailer
}

// SendOTP mails a registration code.
func (s OTPSender) SendOTP(ctx context.Context, to, code string, ttl time.Duration) error {
	body := fmt.Sprintf("Your OTP is: %s\n\nThis OTP will expire in %d minutes.", code, int(ttl.Minutes()))
	return s.Mailer.Send(ctx, []string{to}, "Your OTP for Lab Management System Registration", body)
}
