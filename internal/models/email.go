package models

import "time"

type EmailMessageStatus string

const (
	EmailStatusSent     EmailMessageStatus = "sent"
	EmailStatusReceived EmailMessageStatus = "received"
	EmailStatusFailed   EmailMessageStatus = "failed"
	EmailStatusDraft    EmailMessageStatus = "draft"
	EmailStatusPending  EmailMessageStatus = "pending"
	EmailStatusFiltered EmailMessageStatus = "filtered"
)

type EmailDirection string

const (
	DirectionInbound  EmailDirection = "inbound"
	DirectionOutbound EmailDirection = "outbound"
)

// EmailMessage records one email that crossed the poller or dispatcher.
// (EmailAccountID, MessageID) is unique — the idempotent-ingestion key.
type EmailMessage struct {
	ID            string
	TenantID      string
	ProjectID     string
	TicketID      *string
	EmailAccountID string
	MessageID     string
	InReplyTo     *string
	Subject       string
	BodyText      *string
	BodyHTML      *string
	From          string
	To            []string
	Cc            []string
	Bcc           []string
	Status        EmailMessageStatus
	Direction     EmailDirection
	HasAttachments bool
	ErrorMessage  *string
	CreatedAt     time.Time
	SentAt        *time.Time
	ReceivedAt    *time.Time
}

// EmailProvider selects which outbound Provider implementation handles
// messages sent from an EmailAccount.
type EmailProvider string

const (
	ProviderSMTP     EmailProvider = "smtp"
	ProviderSendGrid EmailProvider = "sendgrid"
	ProviderSES      EmailProvider = "ses"
	ProviderMailgun  EmailProvider = "mailgun"
	ProviderOther    EmailProvider = "other"
)

// EmailAccount carries addressing, sealed credentials, and IMAP polling
// state for one tenant mailbox. Invariant: at most one IsDefault=true per
// organization; only an IsDefault=true && IsActive=true account is picked
// as sender when none is specified.
type EmailAccount struct {
	ID        string
	TenantID  string
	ProjectID string
	OrganizationID *string

	Address     string
	DisplayName string

	Provider       EmailProvider
	SealedAPIKey   SealedCredential // for sendgrid/mailgun/other
	SMTPHost       string
	SMTPPort       int
	SMTPUseTLS     bool
	SealedSMTPUser SealedCredential
	SealedSMTPPass SealedCredential

	IMAPHost       string
	IMAPPort       int
	IMAPUseTLS     bool
	IMAPEnabled    bool
	SealedIMAPUser SealedCredential
	SealedIMAPPass SealedCredential
	LastPolledAt   *time.Time
	LastSeenUID    uint32
	ConsecutiveFailures int
	PollingDisabledAt   *time.Time

	IsActive  bool
	IsDefault bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SealedCredential is the envelope-encrypted form of a secret stored on an
// EmailAccount row; internal/crypto.Envelope seals/opens it.
type SealedCredential struct {
	WrappedKey string
	Ciphertext string
}

// EmailAttachment is an attachment extracted from an inbound MIME message
// before it is handed to the Attachment Coordinator for storage.
type EmailAttachment struct {
	FileName string
	MimeType string
	Size     int64
	Content  []byte
}

// ParsedEmail is the output of MIME parsing an IMAP-fetched message.
type ParsedEmail struct {
	UID         uint32
	MessageID   string
	InReplyTo   string
	References  []string
	From        string
	To          []string
	Cc          []string
	Subject     string
	BodyText    string
	BodyHTML    string
	Headers     map[string][]string
	Attachments []EmailAttachment
}

// OutboundEnvelope is what the dispatcher hands to a Provider.
type OutboundEnvelope struct {
	From        string
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	BodyText    string
	BodyHTML    string
	ReplyTo     string
	MessageID   string
	InReplyTo   string
	References  []string
	Headers     map[string]string
}

// EmailTemplate supports the dispatcher's {{var}} substitution.
type EmailTemplate struct {
	ID              string
	TenantID        string
	ProjectID       string
	Name            string
	SubjectTemplate string
	BodyTemplate    string
}
