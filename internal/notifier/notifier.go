// Package notifier delivers session emails. Services depend on the
// Sender interface and treat delivery failure as non-fatal: a state
// transition that already committed is never rolled back because the
// email did not go out.
package notifier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v3"
)

// Message is a fully rendered notification: recipient, subject, HTML
// body and an optional iCalendar attachment.
type Message struct {
	To        string
	Subject   string
	HTML      string
	InviteICS []byte
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type resendSender struct {
	client    *resend.Client
	fromEmail string
}

// NewResendSender builds a Sender backed by the Resend API.
// fromEmail must belong to a domain verified in Resend.
func NewResendSender(apiKey, fromEmail string) Sender {
	return &resendSender{
		client:    resend.NewClient(apiKey),
		fromEmail: fromEmail,
	}
}

func (s *resendSender) Send(ctx context.Context, msg Message) error {
	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("Session Scheduling <%s>", s.fromEmail),
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	}

	if len(msg.InviteICS) > 0 {
		params.Attachments = []*resend.Attachment{
			{
				Filename:    "invite.ics",
				Content:     msg.InviteICS,
				ContentType: "text/calendar",
			},
		}
	}

	_, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to send session email: %w", err)
	}

	return nil
}

type logSender struct{}

// NewLogSender returns a Sender that only logs. Used when no email
// credentials are configured, so local development works end to end.
func NewLogSender() Sender {
	return logSender{}
}

func (logSender) Send(ctx context.Context, msg Message) error {
	slog.InfoContext(ctx, "MOCK email send",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.Int("ics_bytes", len(msg.InviteICS)),
	)
	return nil
}
