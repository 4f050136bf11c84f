package mailer

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
)

// Message is the delivery gateway contract: one email with both renderings
// and an idempotency reference pointing at the notification record.
type Message struct {
	To             string
	Subject        string
	HTML           string
	Text           string
	IdempotencyRef string
}

// Gateway sends one message and returns the provider's message id. Any error
// is a delivery failure; the caller decides what that means for the record.
type Gateway interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// ResendGateway delivers through the Resend API.
type ResendGateway struct {
	client *resend.Client
	from   string
}

func NewResendGateway(apiKey, fromEmail, fromName string) *ResendGateway {
	from := fromEmail
	if fromName != "" {
		from = fmt.Sprintf("%s <%s>", fromName, fromEmail)
	}
	return &ResendGateway{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}

func (g *ResendGateway) Send(ctx context.Context, msg Message) (string, error) {
	sent, err := g.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    g.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
		Headers: map[string]string{
			"X-Entity-Ref-ID": msg.IdempotencyRef,
		},
	})
	if err != nil {
		return "", fmt.Errorf("resend send: %w", err)
	}
	return sent.Id, nil
}
