package services

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

type EmailService interface {
	SendWelcomeEmail(email, username string) error
}

type emailService struct {
	dialer *gomail.Dialer
	from   string
}

func NewEmailService(smtpHost string, smtpPort int, smtpUser, smtpPassword, fromEmail string) EmailService {
	dialer := gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPassword)
	return &emailService{
		dialer: dialer,
		from:   fromEmail,
	}
}

// WelcomeMessage builds the admin welcome email.
func WelcomeMessage(from, to, username string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Your PWA Notifications admin account")

	body := fmt.Sprintf(`
		<h2>Hello, %s!</h2>
		<p>An administrator account has been created for you.</p>
		<p>You can sign in with your username or email and the password you chose.</p>
	`, username)
	m.SetBody("text/html", body)
	return m
}

func (s *emailService) SendWelcomeEmail(email, username string) error {
	if err := s.dialer.DialAndSend(WelcomeMessage(s.from, email, username)); err != nil {
		return fmt.Errorf("failed to send welcome email: %w", err)
	}
	return nil
}
