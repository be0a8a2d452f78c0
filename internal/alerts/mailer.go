package alerts

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/smtp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sudo-init-do/bidhub/internal/config"
)

// Mailer delivers a rendered email.
type Mailer interface {
	Send(ctx context.Context, e Email) error
}

// NewMailer picks the provider named in cfg.
func NewMailer(cfg config.MailConfig, client *http.Client, log logrus.FieldLogger) (Mailer, error) {
	switch cfg.Provider {
	case "", "log":
		return &LogMailer{log: log}, nil
	case "smtp":
		return &SMTPMailer{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.From,
			ReplyTo:  cfg.ReplyTo,
		}, nil
	case "plunk":
		return NewPlunk(cfg.PlunkAPIKey, cfg.PlunkAPIURL, cfg.From, cfg.ReplyTo, client), nil
	}
	return nil, fmt.Errorf("alerts: unknown mail provider %q", cfg.Provider)
}

// LogMailer writes emails to the log instead of sending them.
type LogMailer struct {
	log logrus.FieldLogger
}

func (m *LogMailer) Send(_ context.Context, e Email) error {
	m.log.WithFields(logrus.Fields{"to": e.To, "subject": e.Subject}).Info("email (log provider)")
	return nil
}

// SMTPMailer sends over implicit TLS with PLAIN auth.
type SMTPMailer struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	ReplyTo  string
}

func (m *SMTPMailer) Send(ctx context.Context, e Email) error {
	addr := net.JoinHostPort(m.Host, m.Port)
	dialer := &tls.Dialer{Config: &tls.Config{ServerName: m.Host}}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer conn.Close()

	c, err := smtp.NewClient(conn, m.Host)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer c.Close()

	if err := c.Auth(smtp.PlainAuth("", m.Username, m.Password, m.Host)); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := c.Mail(envelopeAddress(m.From)); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(e.To); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := wc.Write(m.message(e)); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}
	return c.Quit()
}

func (m *SMTPMailer) message(e Email) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.From)
	fmt.Fprintf(&b, "To: %s\r\n", e.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", e.Subject)
	if m.ReplyTo != "" {
		fmt.Fprintf(&b, "Reply-To: %s\r\n", m.ReplyTo)
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	contentType, body := "text/plain", e.Text
	if e.HTML != "" {
		contentType, body = "text/html", e.HTML
	}
	fmt.Fprintf(&b, "Content-Type: %s; charset=\"utf-8\"\r\n", contentType)
	b.WriteString("\r\n" + body + "\r\n")
	return []byte(b.String())
}

// envelopeAddress strips a display name: "BidHub <a@b.c>" -> "a@b.c".
func envelopeAddress(from string) string {
	if i := strings.LastIndex(from, "<"); i >= 0 {
		if j := strings.LastIndex(from, ">"); j > i {
			return from[i+1 : j]
		}
	}
	return from
}
