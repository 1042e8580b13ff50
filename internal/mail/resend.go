package mail

import (
	"context"
	"fmt"

	"github.com/bareuptime/convcore/internal/models"
	"github.com/resend/resend-go/v2"
)

// ResendProvider backs the EmailProvider "other" catalog value: a concrete
// vendor standing in for any backend not named explicitly in the
// EmailAccount.provider enum.
type ResendProvider struct {
	client *resend.Client
}

func NewResendProvider(apiKey string) *ResendProvider {
	return &ResendProvider{client: resend.NewClient(apiKey)}
}

func (p *ResendProvider) Send(ctx context.Context, envelope models.OutboundEnvelope) (string, error) {
	params := &resend.SendEmailRequest{
		From:    envelope.From,
		To:      envelope.To,
		Cc:      envelope.Cc,
		Bcc:     envelope.Bcc,
		Subject: envelope.Subject,
		Html:    envelope.BodyHTML,
		Text:    envelope.BodyText,
	}
	if envelope.ReplyTo != "" {
		params.ReplyTo = envelope.ReplyTo
	}

	sent, err := p.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return "", fmt.Errorf("resend send: %w", err)
	}
	return sent.Id, nil
}
