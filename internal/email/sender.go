package email

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/gomail.v2"
)

// SMTPSender sends replies over SMTP with STARTTLS.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPSender builds a sender authenticating as address.
func NewSMTPSender(server string, port int, address, password string) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(server, port, address, password),
		from:   address,
	}
}

// Send delivers one plain-text reply.
func (s *SMTPSender) Send(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("sending reply to %s: %w", to, err)
	}
	return nil
}

// FormatDraft serializes a plain-text message for an IMAP draft append.
func FormatDraft(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}
