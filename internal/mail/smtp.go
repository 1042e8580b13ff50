package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/bareuptime/convcore/internal/models"
	"github.com/rs/zerolog"
)

// SMTPProvider sends mail through net/smtp, grounded on the teacher's
// SMTPClient.sendWithTLS but stripped of its debug password logging.
type SMTPProvider struct {
	host     string
	port     int
	useTLS   bool
	username string
	password string
	logger   zerolog.Logger
}

func NewSMTPProvider(host string, port int, useTLS bool, username, password string, logger zerolog.Logger) *SMTPProvider {
	return &SMTPProvider{
		host:     host,
		port:     port,
		useTLS:   useTLS,
		username: username,
		password: password,
		logger:   logger.With().Str("provider", "smtp").Logger(),
	}
}

func (p *SMTPProvider) Send(ctx context.Context, envelope models.OutboundEnvelope) (string, error) {
	body := buildRawMessage(envelope)
	addr := p.host + ":" + strconv.Itoa(p.port)

	start := time.Now()
	err := p.sendWithTLS(addr, envelope.From, allRecipients(envelope), body)
	p.logger.Info().
		Str("smtp_host", p.host).
		Str("from", envelope.From).
		Strs("to", envelope.To).
		Dur("duration", time.Since(start)).
		Err(err).
		Msg("smtp send attempt")
	if err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}
	return envelope.MessageID, nil
}

func (p *SMTPProvider) sendWithTLS(addr, from string, to []string, message []byte) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("dial smtp server: %w", err)
	}
	defer client.Close()

	needsTLS := p.useTLS || p.port == 587 || p.port == 465
	if needsTLS {
		tlsConfig := &tls.Config{ServerName: p.host}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("start tls: %w", err)
		}
	}

	if p.username != "" {
		auth := smtp.PlainAuth("", p.username, p.password, p.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	for _, recipient := range to {
		if err := client.Rcpt(extractEmailAddress(recipient)); err != nil {
			return fmt.Errorf("set recipient %s: %w", recipient, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("open data writer: %w", err)
	}
	if _, err := writer.Write(message); err != nil {
		writer.Close()
		return fmt.Errorf("write message: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close data writer: %w", err)
	}
	return client.Quit()
}

func buildRawMessage(e models.OutboundEnvelope) []byte {
	var body strings.Builder
	body.WriteString("From: " + e.From + "\r\n")
	body.WriteString("To: " + strings.Join(e.To, ", ") + "\r\n")
	if len(e.Cc) > 0 {
		body.WriteString("Cc: " + strings.Join(e.Cc, ", ") + "\r\n")
	}
	body.WriteString("Subject: " + e.Subject + "\r\n")
	if e.MessageID != "" {
		body.WriteString("Message-ID: " + e.MessageID + "\r\n")
	}
	if e.InReplyTo != "" {
		body.WriteString("In-Reply-To: " + e.InReplyTo + "\r\n")
	}
	if len(e.References) > 0 {
		body.WriteString("References: " + strings.Join(e.References, " ") + "\r\n")
	}
	if e.ReplyTo != "" {
		body.WriteString("Reply-To: " + e.ReplyTo + "\r\n")
	}
	for k, v := range e.Headers {
		if k == "Content-Type" {
			continue
		}
		body.WriteString(k + ": " + v + "\r\n")
	}
	body.WriteString("MIME-Version: 1.0\r\n")

	switch {
	case e.BodyHTML != "" && e.BodyText != "":
		boundary := "conv-" + strconv.FormatInt(time.Now().UnixNano(), 10)
		body.WriteString("Content-Type: multipart/alternative; boundary=" + boundary + "\r\n\r\n")
		body.WriteString("--" + boundary + "\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n" + e.BodyText + "\r\n")
		body.WriteString("--" + boundary + "\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n" + e.BodyHTML + "\r\n")
		body.WriteString("--" + boundary + "--\r\n")
	case e.BodyHTML != "":
		body.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n" + e.BodyHTML)
	default:
		body.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n" + e.BodyText)
	}

	return []byte(body.String())
}

func allRecipients(e models.OutboundEnvelope) []string {
	out := make([]string, 0, len(e.To)+len(e.Cc)+len(e.Bcc))
	out = append(out, e.To...)
	out = append(out, e.Cc...)
	out = append(out, e.Bcc...)
	return out
}

func extractEmailAddress(s string) string {
	if i := strings.Index(s, "<"); i >= 0 {
		if j := strings.Index(s, ">"); j > i {
			return s[i+1 : j]
		}
	}
	return strings.TrimSpace(s)
}
