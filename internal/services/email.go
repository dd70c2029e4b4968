package services

import (
	"fmt"
	"net/smtp"
	"os"
	"strings"

	"edumarket_echo/internal/models"
)

// ConfirmationSender delivers the purchase confirmation after a paid
// settlement. Delivery is best-effort; the reconciler never rolls back a
// settlement over a failed send.
type ConfirmationSender interface {
	SendPurchaseConfirmation(order *models.Order) error
}

type EmailService struct {
	host     string
	port     string
	user     string
	password string
	from     string
}

func NewEmailService() *EmailService {
	return &EmailService{
		host:     os.Getenv("SMTP_HOST"),
		port:     os.Getenv("SMTP_PORT"),
		user:     os.Getenv("SMTP_USER"),
		password: os.Getenv("SMTP_PASS"),
		from:     os.Getenv("EMAIL_FROM"),
	}
}

func (s *EmailService) SendEmail(to []string, subject, body string) error {
	if s.host == "" || s.port == "" || s.user == "" || s.password == "" {
		return fmt.Errorf("SMTP credentials not fully configured")
	}

	auth := smtp.PlainAuth("", s.user, s.password, s.host)

	// Build the message
	message := []byte(fmt.Sprintf("To: %s\r\n"+
		"Subject: %s\r\n"+
		"\r\n"+
		"%s\r\n", to[0], subject, body))

	addr := fmt.Sprintf("%s:%s", s.host, s.port)

	err := smtp.SendMail(addr, auth, s.from, to, message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

// SendPurchaseConfirmation emails the order summary to the billing address
func (s *EmailService) SendPurchaseConfirmation(order *models.Order) error {
	if order.BillingEmail == "" {
		return fmt.Errorf("order %s has no billing email", order.OrderNumber)
	}

	var lines strings.Builder
	for _, line := range order.Lines {
		fmt.Fprintf(&lines, "  - %s (%.2f)\n", line.CourseTitle, line.Subtotal)
	}

	subject := fmt.Sprintf("Order %s confirmed", order.OrderNumber)
	body := fmt.Sprintf(
		"Hi %s,\n\n"+
			"Your payment for order %s has been confirmed.\n\n"+
			"Courses:\n%s\n"+
			"Total: %.2f\n\n"+
			"You now have access to all courses in this order.\n",
		order.BillingName, order.OrderNumber, lines.String(), order.Total)

	return s.SendEmail([]string{order.BillingEmail}, subject, body)
}
