package mail

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/bareuptime/convcore/internal/models"
)

// SESProvider sends mail through Amazon SES v2, the AWS SDK already wired
// into this module for blob storage.
type SESProvider struct {
	client *sesv2.Client
}

func NewSESProvider(client *sesv2.Client) *SESProvider {
	return &SESProvider{client: client}
}

func (p *SESProvider) Send(ctx context.Context, envelope models.OutboundEnvelope) (string, error) {
	content := &types.EmailContent{
		Simple: &types.Message{
			Subject: &types.Content{Data: aws.String(envelope.Subject)},
			Body:    &types.Body{},
		},
	}
	if envelope.BodyHTML != "" {
		content.Simple.Body.Html = &types.Content{Data: aws.String(envelope.BodyHTML)}
	}
	if envelope.BodyText != "" {
		content.Simple.Body.Text = &types.Content{Data: aws.String(envelope.BodyText)}
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(envelope.From),
		Destination: &types.Destination{
			ToAddresses:  envelope.To,
			CcAddresses:  envelope.Cc,
			BccAddresses: envelope.Bcc,
		},
		Content: content,
	}
	if envelope.ReplyTo != "" {
		input.ReplyToAddresses = []string{envelope.ReplyTo}
	}

	out, err := p.client.SendEmail(ctx, input)
	if err != nil {
		return "", fmt.Errorf("ses send email: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}
