package notification

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
	"github.com/julo/repayment-service/internal/config"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// EmailSink sends the customer a payment receipt via SMTP
type EmailSink struct {
	cfg  config.NotifyConfig
	send func(e *email.Email, addr string, auth smtp.Auth) error
}

// NewEmailSink creates a new email receipt sink
func NewEmailSink(cfg config.NotifyConfig) *EmailSink {
	return &EmailSink{
		cfg: cfg,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

func (s *EmailSink) Name() string { return "email" }

// Send skips customers without an email address on file
func (s *EmailSink) Send(ctx context.Context, ev Event) error {
	if ev.Email == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e := s.buildReceipt(ev)
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := s.send(e, addr, auth); err != nil {
		return fmt.Errorf("failed to send receipt email: %w", err)
	}
	return nil
}

func (s *EmailSink) buildReceipt(ev Event) *email.Email {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{ev.Email}
	if len(ev.PaidOffAccountPaymentIDs) > 0 {
		e.Subject = "Your installment has been paid"
	} else {
		e.Subject = "We have received your payment"
	}

	name := ev.FullName
	if name == "" {
		name = "Customer"
	}
	body := fmt.Sprintf("Dear %s,\n\n", name)
	body += fmt.Sprintf(
		"We received your payment of Rp %s on %s.\n"+
			"Amount applied to your installments: Rp %s\n",
		formatRupiah(ev.Amount), ev.OccurredAt.Format("2006-01-02 15:04"), formatRupiah(ev.Applied),
	)
	if ev.UsingCashback {
		body += "This payment was made with your cashback balance.\n"
	}
	if ev.Overpayment > 0 && !ev.UsingCashback {
		body += fmt.Sprintf("The excess of Rp %s has been added to your cashback balance.\n", formatRupiah(ev.Overpayment))
	}
	if n := len(ev.PaidOffAccountPaymentIDs); n > 0 {
		body += fmt.Sprintf("%d installment(s) are now fully paid.\n", n)
	}
	body += fmt.Sprintf("\nReference: %d\n", ev.PaybackTransactionID)
	body += "\nBest regards,\nJULO"
	e.Text = []byte(body)
	return e
}

// formatRupiah groups thousands the Indonesian way: 1250000 -> 1.250.000
func formatRupiah(amount int64) string {
	return message.NewPrinter(language.Indonesian).Sprintf("%d", amount)
}
