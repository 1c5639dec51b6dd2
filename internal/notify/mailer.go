// Package notify sends notification email.
package notify

import (
	"crypto/tls"
	"fmt"
	"html"

	"gopkg.in/gomail.v2"

	"github.com/iliyamo/pet-care-marketplace/internal/config"
)

// Sender delivers one HTML email.
type Sender interface {
	Send(to, subject, htmlBody string) error
}

// SMTP sends mail through the configured relay.
type SMTP struct {
	from   string
	dialer *gomail.Dialer
}

func NewSMTP(cfg config.MailConfig) *SMTP {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	return &SMTP{from: cfg.From, dialer: d}
}

func (s *SMTP) Send(to, subject, htmlBody string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)
	return s.dialer.DialAndSend(m)
}

// NewMessageMail renders the "you have a new message" email.
func NewMessageMail(appURL, consultationID, preview string) (subject, body string) {
	link := fmt.Sprintf("%s/consultation/%s", appURL, consultationID)
	subject = "New message in your consultation"
	body = fmt.Sprintf(`<p>You have a new message:</p>
<blockquote>%s</blockquote>
<p><a href="%s">Open the consultation</a></p>`, html.EscapeString(preview), html.EscapeString(link))
	return subject, body
}
