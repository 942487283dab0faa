package notify

import (
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"

	"github.com/kevin07696/subscription-scheduler/internal/domain"
	"github.com/kevin07696/subscription-scheduler/internal/domain/ports"
)

// SMTPConfig holds mail server settings
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Sender   string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier sends HTML emails through an SMTP relay
type SMTPNotifier struct {
	renderer *Renderer
	logger   ports.Logger
	send     sendFunc
	cfg      SMTPConfig
}

var _ ports.Notifier = (*SMTPNotifier)(nil)

// NewSMTPNotifier creates an SMTP notifier. Sender defaults to no-reply@<host>.
func NewSMTPNotifier(cfg SMTPConfig, renderer *Renderer, logger ports.Logger) *SMTPNotifier {
	if cfg.Sender == "" {
		cfg.Sender = "no-reply@" + cfg.Host
	}
	return &SMTPNotifier{
		cfg:      cfg,
		renderer: renderer,
		logger:   logger,
		send:     smtp.SendMail,
	}
}

// Send renders kind and mails it to the customer
func (n *SMTPNotifier) Send(ctx context.Context, customer domain.Customer, kind domain.TemplateKind, data map[string]any) error {
	if customer.Email == "" {
		return fmt.Errorf("customer %s has no email address", customer.ID)
	}

	subject, body, err := n.renderer.Render(kind, customer, data)
	if err != nil {
		return err
	}

	// net/smtp has no context support; honor cancellation before dialing
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if n.cfg.Username != "" && n.cfg.Password != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	addr := net.JoinHostPort(n.cfg.Host, n.cfg.Port)
	if err := n.send(addr, auth, n.cfg.Sender, []string{customer.Email}, buildMessage(n.cfg.Sender, customer.Email, subject, body)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", addr, err)
	}

	n.logger.Debug("email sent",
		ports.String("template", string(kind)),
		ports.String("customer_id", customer.ID))
	return nil
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
