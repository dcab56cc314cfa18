package mailer

import (
	"context"
	"errors"
	"fmt"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/helpdesk-kit/ticket-service/internal/config"
)

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ErrNoRecipient is returned for messages without a destination address.
var ErrNoRecipient = errors.New("mailer: message has no recipient")

const (
	autoReplySubject   = "Your request has been received"
	autoReplyBody      = "Thank you for contacting us. We have started processing your ticket. Please wait for a response."
	closeNoticeSubject = "Your request has been closed"
	closeNoticeBody    = "Your request has been successfully closed. Thank you for contacting us!"
)

// AutoReply is sent when a ticket is opened.
func AutoReply(to string) Message {
	return Message{To: to, Subject: autoReplySubject, Body: autoReplyBody}
}

// CloseNotice is sent when a ticket is closed.
func CloseNotice(to string) Message {
	return Message{To: to, Subject: closeNoticeSubject, Body: closeNoticeBody}
}

// SMTPSender sends through an SMTP relay with mandatory STARTTLS.
// Each Send opens its own session.
type SMTPSender struct {
	cfg    config.SMTPConfig
	logger *zap.Logger
}

// NewSMTPSender builds a sender for cfg.
func NewSMTPSender(cfg config.SMTPConfig, logger *zap.Logger) *SMTPSender {
	return &SMTPSender{cfg: cfg, logger: logger}
}

// Send delivers msg, returning any transport or auth failure.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}

	m := gomail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return fmt.Errorf("invalid sender address %q: %w", s.cfg.From, err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("invalid recipient address %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.Body)

	client, err := gomail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}

	s.logger.Debug("email sent", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

func (s *SMTPSender) clientOptions() []gomail.Option {
	opts := []gomail.Option{
		gomail.WithPort(s.cfg.Port),
		gomail.WithTLSPolicy(gomail.TLSMandatory),
	}
	if timeout := s.cfg.Timeout(); timeout > 0 {
		opts = append(opts, gomail.WithTimeout(timeout))
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}
	return opts
}
