package passreset

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/zonewarden/zonewarden/internal/config"
)

// Mailer delivers the reset link to the user.
type Mailer interface {
	SendResetMail(to, resetURL string) error
}

// SMTPMailer sends reset mails through a plain SMTP relay.
type SMTPMailer struct {
	host string
	port int
	from string
}

// NewSMTPMailer creates a mailer from the password reset configuration.
func NewSMTPMailer(cfg *config.PasswordReset) *SMTPMailer {
	return &SMTPMailer{
		host: cfg.SMTPHost,
		port: cfg.SMTPPort,
		from: cfg.MailFrom,
	}
}

// SendResetMail sends the reset link to the given address.
func (m *SMTPMailer) SendResetMail(to, resetURL string) error {
	var msg strings.Builder

	msg.WriteString("From: " + m.from + "\r\n")
	msg.WriteString("To: " + to + "\r\n")
	msg.WriteString("Subject: Password reset\r\n")
	msg.WriteString("\r\n")
	msg.WriteString("A password reset was requested for your account.\r\n\r\n")
	msg.WriteString("Open the following link to set a new password:\r\n")
	msg.WriteString(resetURL + "\r\n\r\n")
	msg.WriteString("If you did not request this, you can ignore this mail.\r\n")

	addr := fmt.Sprintf("%s:%d", m.host, m.port)

	return smtp.SendMail(addr, nil, m.from, []string{to}, []byte(msg.String()))
}
