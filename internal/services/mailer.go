package services

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/procur/backend/internal/config"
	"github.com/procur/backend/pkg/logger"
)

// Mailer delivers a single message. Implementations must be safe for
// concurrent use; delivery failures surface as errors so the dispatch queue
// can retry.
type Mailer interface {
	Send(to, subject, htmlBody, textBody string) error
}

// SMTPMailer speaks plain SMTP with optional AUTH. When the SMTP subsystem
// is disabled by config it degrades to logging the would-be delivery, which
// keeps local development working without a relay.
type SMTPMailer struct {
	cfg config.SMTPConfig
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) Send(to, subject, htmlBody, textBody string) error {
	if !m.cfg.Enabled {
		logger.Info("email_skipped", map[string]interface{}{
			"to":      to,
			"subject": subject,
			"reason":  "smtp disabled",
		})
		return nil
	}

	var msg strings.Builder
	boundary := "procur-mime-boundary"

	fmt.Fprintf(&msg, "From: %s <%s>\r\n", m.cfg.FromName, m.cfg.FromEmail)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%q\r\n", boundary)
	msg.WriteString("\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(textBody)
	msg.WriteString("\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	msg.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	msg.WriteString(htmlBody)
	msg.WriteString("\r\n")

	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	addr := m.cfg.Host + ":" + m.cfg.Port
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	return smtp.SendMail(addr, auth, m.cfg.FromEmail, []string{to}, []byte(msg.String()))
}
