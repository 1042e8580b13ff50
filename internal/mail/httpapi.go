package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bareuptime/convcore/internal/models"
)

// SendGridProvider and MailgunProvider are thin REST clients over
// net/http. Neither vendor's SDK appears anywhere in the retrieval pack,
// so unlike ses/other these stay on the standard library rather than
// introducing an unfetched dependency (see DESIGN.md).

type SendGridProvider struct {
	apiKey string
	http   *http.Client
}

func NewSendGridProvider(apiKey string) *SendGridProvider {
	return &SendGridProvider{apiKey: apiKey, http: &http.Client{Timeout: 30 * time.Second}}
}

type sendGridAddress struct {
	Email string `json:"email"`
}

type sendGridPersonalization struct {
	To  []sendGridAddress `json:"to"`
	Cc  []sendGridAddress `json:"cc,omitempty"`
	Bcc []sendGridAddress `json:"bcc,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridRequest struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
	ReplyTo          *sendGridAddress          `json:"reply_to,omitempty"`
}

func (p *SendGridProvider) Send(ctx context.Context, envelope models.OutboundEnvelope) (string, error) {
	req := sendGridRequest{
		Personalizations: []sendGridPersonalization{{
			To:  toAddresses(envelope.To),
			Cc:  toAddresses(envelope.Cc),
			Bcc: toAddresses(envelope.Bcc),
		}},
		From:    sendGridAddress{Email: envelope.From},
		Subject: envelope.Subject,
	}
	if envelope.BodyText != "" {
		req.Content = append(req.Content, sendGridContent{Type: "text/plain", Value: envelope.BodyText})
	}
	if envelope.BodyHTML != "" {
		req.Content = append(req.Content, sendGridContent{Type: "text/html", Value: envelope.BodyHTML})
	}
	if envelope.ReplyTo != "" {
		req.ReplyTo = &sendGridAddress{Email: envelope.ReplyTo}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal sendgrid request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.sendgrid.com/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build sendgrid request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("sendgrid request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("sendgrid responded with status %d", resp.StatusCode)
	}
	return resp.Header.Get("X-Message-Id"), nil
}

func toAddresses(addrs []string) []sendGridAddress {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]sendGridAddress, len(addrs))
	for i, a := range addrs {
		out[i] = sendGridAddress{Email: a}
	}
	return out
}

type MailgunProvider struct {
	apiKey string
	domain string
	http   *http.Client
}

func NewMailgunProvider(apiKey, domain string) *MailgunProvider {
	return &MailgunProvider{apiKey: apiKey, domain: domain, http: &http.Client{Timeout: 30 * time.Second}}
}

type mailgunResponse struct {
	ID string `json:"id"`
}

func (p *MailgunProvider) Send(ctx context.Context, envelope models.OutboundEnvelope) (string, error) {
	form := url.Values{}
	form.Set("from", envelope.From)
	for _, to := range envelope.To {
		form.Add("to", to)
	}
	for _, cc := range envelope.Cc {
		form.Add("cc", cc)
	}
	for _, bcc := range envelope.Bcc {
		form.Add("bcc", bcc)
	}
	form.Set("subject", envelope.Subject)
	if envelope.BodyText != "" {
		form.Set("text", envelope.BodyText)
	}
	if envelope.BodyHTML != "" {
		form.Set("html", envelope.BodyHTML)
	}
	if envelope.ReplyTo != "" {
		form.Set("h:Reply-To", envelope.ReplyTo)
	}

	endpoint := fmt.Sprintf("https://api.mailgun.net/v3/%s/messages", p.domain)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build mailgun request: %w", err)
	}
	httpReq.SetBasicAuth("api", p.apiKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("mailgun request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("mailgun responded with status %d", resp.StatusCode)
	}

	var parsed mailgunResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode mailgun response: %w", err)
	}
	return parsed.ID, nil
}
