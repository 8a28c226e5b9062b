package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/cashflow/course-payments/internal/core"
	"github.com/cashflow/course-payments/internal/port/output"
	"gopkg.in/gomail.v2"
)

// SMTPConfig holds the SMTP relay settings
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

type mailTemplate struct {
	subject string
	body    *template.Template
}

var templates = map[core.NotificationKind]mailTemplate{
	core.NotifyPaymentSucceeded: {
		subject: "Your payment was successful",
		body: template.Must(template.New("payment_succeeded").Parse(
			`<p>Hello,</p><p>We received your payment <strong>{{.PaymentID}}</strong>. Your course is now available.</p>` +
				`<p>{{.OccurredAt.Format "02 Jan 2006 15:04 MST"}}</p>`)),
	},
	core.NotifyPaymentFailed: {
		subject: "Your payment failed",
		body: template.Must(template.New("payment_failed").Parse(
			`<p>Hello,</p><p>Your payment <strong>{{.PaymentID}}</strong> could not be completed. You can try again from your enrollments page.</p>` +
				`<p>{{.OccurredAt.Format "02 Jan 2006 15:04 MST"}}</p>`)),
	},
	core.NotifyPaymentRefunded: {
		subject: "Your payment was refunded",
		body: template.Must(template.New("payment_refunded").Parse(
			`<p>Hello,</p><p>Your payment <strong>{{.PaymentID}}</strong> was refunded and your access to the course has ended.</p>` +
				`<p>{{.OccurredAt.Format "02 Jan 2006 15:04 MST"}}</p>`)),
	},
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender implements the NotificationSender output port with gomail
type SMTPSender struct {
	from   string
	dialer dialer
}

var _ output.NotificationSender = (*SMTPSender)(nil)

// NewSMTPSender creates a sender that dials the relay for every message
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
	}
}

// Deliver renders the template for the notification kind and sends it
func (s *SMTPSender) Deliver(ctx context.Context, n output.Notification) error {
	m, err := s.compose(n)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *SMTPSender) compose(n output.Notification) (*gomail.Message, error) {
	subject, body, err := render(n)
	if err != nil {
		return nil, err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", n.Email)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)
	return m, nil
}

// render returns the subject and HTML body for a notification
func render(n output.Notification) (string, string, error) {
	tmpl, ok := templates[n.Kind]
	if !ok {
		return "", "", fmt.Errorf("%w: no template for %q", output.ErrUndeliverable, n.Kind)
	}

	var body bytes.Buffer
	if err := tmpl.body.Execute(&body, n); err != nil {
		return "", "", fmt.Errorf("%w: render %s: %v", output.ErrUndeliverable, n.Kind, err)
	}
	return tmpl.subject, body.String(), nil
}
