package utils

import (
	"crypto/tls"
	"fmt"
	"regexp"

	"gopkg.in/gomail.v2"
)

var htmlTag = regexp.MustCompile("<[^>]+>")

type Mailer struct {
	dialer   *gomail.Dialer
	from     string
	fromName string
}

func NewMailer(host string, port int, login, password, from, fromName string) *Mailer {
	dialer := gomail.NewDialer(host, port, login, password)
	dialer.TLSConfig = &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	}

	return &Mailer{
		dialer:   dialer,
		from:     from,
		fromName: fromName,
	}
}

// Send mails one recipient. Bodies containing markup go out as HTML.
func (m *Mailer) Send(to, subject, body string) error {
	msg := m.compose(to, subject, body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (m *Mailer) compose(to, subject, body string) *gomail.Message {
	msg := gomail.NewMessage(
		gomail.SetCharset("UTF-8"),
		gomail.SetEncoding(gomail.Base64),
	)

	msg.SetAddressHeader("From", m.from, m.fromName)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)

	if htmlTag.MatchString(body) {
		msg.SetBody("text/html", body)
	} else {
		msg.SetBody("text/plain", body)
	}

	return msg
}
