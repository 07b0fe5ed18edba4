package notify

import (
	"fmt"
	"os"

	"gopkg.in/gomail.v2"
)

// Mailer delivers alert emails over SMTP (STARTTLS).
type Mailer struct {
	host     string
	port     int
	from     string
	to       string
	password string
}

// NewMailer creates a Mailer. The from address doubles as the SMTP user.
func NewMailer(host string, port int, from, to, password string) *Mailer {
	return &Mailer{
		host:     host,
		port:     port,
		from:     from,
		to:       to,
		password: password,
	}
}

// Send delivers one email synchronously. If attachmentPath is empty or the
// file has gone missing by send time, the mail goes out text-only rather
// than failing. Delivery failures come back as errors and are safe to
// swallow; nothing is retried here.
func (m *Mailer) Send(subject, body, attachmentPath string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", m.to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if path := attachment(attachmentPath); path != "" {
		msg.Attach(path)
	}

	dialer := gomail.NewDialer(m.host, m.port, m.from, m.password)
	if err := dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// attachment returns path when the file exists, otherwise "".
func attachment(path string) string {
	if path == "" {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// Nop is a no-op sink used when email settings are absent and in tests.
type Nop struct{}

// Send discards the message.
func (Nop) Send(subject, body, attachmentPath string) error { return nil }
