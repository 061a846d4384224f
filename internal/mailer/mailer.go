package mailer

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

// Config holds the SMTP relay settings.
type Config struct {
	Host     string
	Port     int
	From     string
	Password string
}

// SMTPMailer sends the listing-created notice to the owner.
type SMTPMailer struct {
	from   string
	dialer *gomail.Dialer
}

func NewSMTPMailer(cfg Config) *SMTPMailer {
	return &SMTPMailer{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.From, cfg.Password),
	}
}

func (m *SMTPMailer) SendListingCreatedEmail(toEmail, listingName string) error {
	if toEmail == "" {
		return fmt.Errorf("mailer: empty recipient")
	}
	return m.dialer.DialAndSend(listingCreatedMessage(m.from, toEmail, listingName))
}

func listingCreatedMessage(from, to, listingName string) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "Your listing is live")
	msg.SetBody("text/plain", "Your listing '"+listingName+"' has been published and is now visible to other users.")
	return msg
}
