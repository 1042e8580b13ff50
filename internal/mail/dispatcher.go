package mail

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/bareuptime/convcore/internal/coreerr"
	"github.com/bareuptime/convcore/internal/crypto"
	"github.com/bareuptime/convcore/internal/idgen"
	"github.com/bareuptime/convcore/internal/models"
	"github.com/bareuptime/convcore/internal/store"
	"github.com/rs/zerolog"
)

// SendParams is the caller-facing request for SendFromTicket; TemplateID
// is optional and, when set, the rendered template subject and body replace
// Subject and BodyText. BodyHTML is sent as given in either case.
type SendParams struct {
	To         []string
	Cc         []string
	Bcc        []string
	Subject    string
	BodyText   string
	BodyHTML   string
	ReplyTo    string
	TemplateID string
}

// TemplateVars is the known variable set the dispatcher substitutes into a
// template: ticket_id, customer_name, customer_email, subject, message,
// admin_name. Unset fields render as empty per §4.5.
type TemplateVars struct {
	TicketID      string
	CustomerName  string
	CustomerEmail string
	Subject       string
	Message       string
	AdminName     string
}

func (v TemplateVars) toMap() map[string]string {
	return map[string]string{
		"ticket_id":      v.TicketID,
		"customer_name":  v.CustomerName,
		"customer_email": v.CustomerEmail,
		"subject":        v.Subject,
		"message":        v.Message,
		"admin_name":     v.AdminName,
	}
}

// Dispatcher implements §4.5: picks a sender account, resolves the
// account's Provider, renders a template when one is named, stamps
// threading and anti-loop headers, and records the resulting EmailMessage.
type Dispatcher struct {
	store    store.Store
	envelope *crypto.Envelope
	ids      idgen.Source
	logger   zerolog.Logger
	domain   string
	ses      *sesv2.Client
}

func NewDispatcher(s store.Store, envelope *crypto.Envelope, ids idgen.Source, domain string, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{store: s, envelope: envelope, ids: ids, logger: logger.With().Str("component", "email_dispatcher").Logger(), domain: domain}
}

// SetSESClient wires a shared SES v2 client so ProviderSES accounts can
// dispatch; left unset, such accounts fail with a validation error instead
// of a nil pointer panic.
func (d *Dispatcher) SetSESClient(client *sesv2.Client) {
	d.ses = client
}

// SendFromTicket selects an account (explicit senderAccountID, else the
// organization default, else any active account, else NoSenderConfigured),
// renders a template if named, sends through the account's Provider, and
// records an outbound EmailMessage.
func (d *Dispatcher) SendFromTicket(ctx context.Context, tenantID, projectID, ticketID string, params SendParams, vars TemplateVars, senderAccountID *string) (*models.EmailMessage, error) {
	account, err := d.selectAccount(ctx, tenantID, projectID, senderAccountID)
	if err != nil {
		return nil, err
	}

	subject, bodyText, bodyHTML := params.Subject, params.BodyText, params.BodyHTML
	if params.TemplateID != "" {
		tpl, err := d.store.GetTemplate(ctx, tenantID, projectID, params.TemplateID)
		if err != nil {
			return nil, fmt.Errorf("load template: %w", err)
		}
		renderedSubject, renderedBody := renderTemplate(tpl, vars.toMap())
		subject, bodyText = renderedSubject, renderedBody
	}

	inReplyTo, _ := d.store.LatestInboundMessageID(ctx, ticketID)
	messageID, references := GenerateThreadingHeaders(ticketID, d.domain, nonEmpty(inReplyTo))

	envelope := models.OutboundEnvelope{
		From:       account.Address,
		To:         params.To,
		Cc:         params.Cc,
		Bcc:        params.Bcc,
		Subject:    subject,
		BodyText:   bodyText,
		BodyHTML:   bodyHTML,
		ReplyTo:    firstNonEmpty(params.ReplyTo, verpReplyAddress(ticketID, d.domain)),
		MessageID:  messageID,
		InReplyTo:  inReplyTo,
		References: splitRefs(references),
		Headers:    loopPreventionHeaders(),
	}

	provider, err := d.providerFor(account)
	if err != nil {
		return nil, err
	}

	em := &models.EmailMessage{
		ID:             d.ids.UUID(),
		TenantID:       tenantID,
		ProjectID:      projectID,
		TicketID:       &ticketID,
		EmailAccountID: account.ID,
		MessageID:      messageID,
		Subject:        subject,
		BodyText:       &bodyText,
		From:           account.Address,
		To:             params.To,
		Cc:             params.Cc,
		Bcc:            params.Bcc,
		Direction:      models.DirectionOutbound,
	}
	if bodyHTML != "" {
		em.BodyHTML = &bodyHTML
	}
	if inReplyTo != "" {
		em.InReplyTo = &inReplyTo
	}

	_, sendErr := provider.Send(ctx, envelope)
	if sendErr != nil {
		em.Status = models.EmailStatusFailed
		errMsg := sendErr.Error()
		em.ErrorMessage = &errMsg
	} else {
		em.Status = models.EmailStatusSent
	}

	if err := d.store.CreateEmailMessage(ctx, em); err != nil {
		return nil, fmt.Errorf("record outbound email: %w", err)
	}
	if sendErr != nil {
		return em, coreerr.Transient("send outbound email", sendErr)
	}
	return em, nil
}

func (d *Dispatcher) selectAccount(ctx context.Context, tenantID, projectID string, senderAccountID *string) (*models.EmailAccount, error) {
	if senderAccountID != nil && *senderAccountID != "" {
		account, err := d.store.GetEmailAccount(ctx, *senderAccountID)
		if err != nil {
			return nil, fmt.Errorf("get sender account: %w", err)
		}
		return account, nil
	}

	account, err := d.store.DefaultSenderAccount(ctx, tenantID, projectID)
	if err != nil {
		if coreerr.Is(err, coreerr.KindNotFound) {
			return nil, coreerr.NotFound("no sender account configured for this organization")
		}
		return nil, fmt.Errorf("resolve default sender account: %w", err)
	}
	return account, nil
}

func (d *Dispatcher) providerFor(account *models.EmailAccount) (Provider, error) {
	switch account.Provider {
	case models.ProviderSMTP:
		user, err := d.envelope.Open(crypto.Sealed(account.SealedSMTPUser))
		if err != nil {
			return nil, fmt.Errorf("decrypt smtp username: %w", err)
		}
		pass, err := d.envelope.Open(crypto.Sealed(account.SealedSMTPPass))
		if err != nil {
			return nil, fmt.Errorf("decrypt smtp password: %w", err)
		}
		return NewSMTPProvider(account.SMTPHost, account.SMTPPort, account.SMTPUseTLS, user, pass, d.logger), nil
	case models.ProviderSES:
		if d.ses == nil {
			return nil, coreerr.Validation("ses provider not configured on this dispatcher")
		}
		return NewSESProvider(d.ses), nil
	case models.ProviderSendGrid:
		key, err := d.envelope.Open(crypto.Sealed(account.SealedAPIKey))
		if err != nil {
			return nil, fmt.Errorf("decrypt sendgrid api key: %w", err)
		}
		return NewSendGridProvider(key), nil
	case models.ProviderMailgun:
		key, err := d.envelope.Open(crypto.Sealed(account.SealedAPIKey))
		if err != nil {
			return nil, fmt.Errorf("decrypt mailgun api key: %w", err)
		}
		return NewMailgunProvider(key, account.SMTPHost), nil
	case models.ProviderOther:
		key, err := d.envelope.Open(crypto.Sealed(account.SealedAPIKey))
		if err != nil {
			return nil, fmt.Errorf("decrypt provider api key: %w", err)
		}
		return NewResendProvider(key), nil
	default:
		return nil, coreerr.Validation(fmt.Sprintf("unsupported email provider %q", account.Provider))
	}
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}

func splitRefs(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
