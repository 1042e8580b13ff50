// Package store defines the persistence boundary every core component
// depends on. Postgres is the only implementation shipped here, but
// components are built against this interface so the conversation core
// never imports database/sql or sqlx directly outside this package.
package store

import (
	"context"
	"time"

	"github.com/bareuptime/convcore/internal/models"
)

// TicketFilters narrows a ticket List call; zero-value fields impose no
// constraint. Mirrors the teacher's dynamic-WHERE repository style.
type TicketFilters struct {
	Status     []models.TicketStatus
	Priority   []models.TicketPriority
	AssigneeID *string
	UserID     *string
	Search     string
	Source     []models.TicketSource
	IsDeleted  *bool
}

type Pagination struct {
	Cursor string
	Limit  int
}

// Store is the persistence boundary for every entity in the data model.
// Every method is ctx-first and error-returning; conditional writes that
// can legitimately be "not found" or "already in that state" return
// coreerr-kinded errors, not generic ones.
type Store interface {
	TicketStore
	MessageStore
	TagStore
	AttachmentStore
	EmailStore
	RoutingStore
	SlaStore
	TenantStore

	// WithTx runs fn inside a transaction, rolling back if fn returns an
	// error. Used by the ticket manager's bulk soft-delete, restore and hard
	// delete; routing rule application and its RoutingLog append do not run
	// inside a transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type TicketStore interface {
	CreateTicket(ctx context.Context, t *models.Ticket) error
	GetTicket(ctx context.Context, tenantID, projectID, ticketID string) (*models.Ticket, error)
	// GetTicketUnscoped fetches a ticket by id alone, for internal callers
	// (routing, SLA, reaper) operating across tenants or already holding a
	// ticket id resolved through a prior tenant-scoped read.
	GetTicketUnscoped(ctx context.Context, ticketID string) (*models.Ticket, error)
	GetTicketByNumber(ctx context.Context, tenantID string, number int) (*models.Ticket, error)
	// FindOpenContinuation returns the ticket matching key with
	// status != closed && !is_deleted, or coreerr NotFound.
	FindOpenContinuation(ctx context.Context, tenantID, projectID string, key models.ContinuationKey) (*models.Ticket, error)
	UpdateTicket(ctx context.Context, t *models.Ticket) error
	DeleteTicket(ctx context.Context, tenantID, projectID, ticketID string) error
	ListTickets(ctx context.Context, tenantID, projectID string, filters TicketFilters, page Pagination) ([]*models.Ticket, string, error)
	// ListDeletedBefore finds soft-deleted tickets past their retention
	// cutoff across every tenant, for the trash reaper.
	ListDeletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Ticket, error)
	// ListOverdue returns non-closed tickets linked to an SLA, oldest first,
	// for the SLA scanner. Deadlines and existing violations are not checked
	// here; the scanner does both.
	ListOverdue(ctx context.Context, asOf time.Time, limit int) ([]*models.Ticket, error)
}

type MessageStore interface {
	AppendMessage(ctx context.Context, m *models.Message) error
	ListMessages(ctx context.Context, ticketID string) ([]*models.Message, error)
}

type TagStore interface {
	FindOrCreateTag(ctx context.Context, tenantID, projectID, name string) (*models.Tag, error)
	AttachTag(ctx context.Context, ticketID, tagID string) error
	ListTicketTags(ctx context.Context, ticketID string) ([]*models.Tag, error)
	SetCategory(ctx context.Context, ticketID, category string) error
}

type AttachmentStore interface {
	CreateAttachment(ctx context.Context, a *models.Attachment) error
	GetAttachment(ctx context.Context, attachmentID string) (*models.Attachment, error)
	DeleteAttachment(ctx context.Context, attachmentID string) error
	ListAttachmentsByTicket(ctx context.Context, ticketID string) ([]*models.Attachment, error)
}

type EmailStore interface {
	CreateEmailMessage(ctx context.Context, em *models.EmailMessage) error
	// GetEmailMessageByMessageID enforces the (email_account_id,
	// message_id) uniqueness invariant — callers use it for idempotent
	// ingestion checks before insert.
	GetEmailMessageByMessageID(ctx context.Context, accountID, messageID string) (*models.EmailMessage, error)
	// FindTicketByInReplyTo resolves an In-Reply-To header to the ticket
	// the referenced message belongs to, or coreerr NotFound.
	FindTicketByInReplyTo(ctx context.Context, accountID, inReplyTo string) (string, error)
	UpdateEmailMessage(ctx context.Context, em *models.EmailMessage) error
	ListEmailMessagesByTicket(ctx context.Context, ticketID string) ([]*models.EmailMessage, error)
	// LatestInboundMessageID returns the most recent inbound EmailMessage's
	// MessageID for a ticket, used for outbound In-Reply-To threading.
	LatestInboundMessageID(ctx context.Context, ticketID string) (string, error)

	ListActiveIMAPAccounts(ctx context.Context) ([]*models.EmailAccount, error)
	GetEmailAccount(ctx context.Context, accountID string) (*models.EmailAccount, error)
	// DefaultSenderAccount picks by EmailAccount.IsDefault, falling back to
	// any IsActive account, per §4.5's selection order.
	DefaultSenderAccount(ctx context.Context, tenantID, projectID string) (*models.EmailAccount, error)
	UpdateAccountCursor(ctx context.Context, accountID string, lastSeenUID uint32, polledAt time.Time) error
	RecordAccountFailure(ctx context.Context, accountID string, consecutiveFailures int, disablePolling bool) error
	ResetAccountFailures(ctx context.Context, accountID string) error

	// CreateEmailAccount, ListEmailAccounts, UpdateEmailAccount back the
	// admin CRUD + enable-polling toggle surface in §6.
	CreateEmailAccount(ctx context.Context, a *models.EmailAccount) error
	ListEmailAccounts(ctx context.Context, tenantID, projectID string) ([]*models.EmailAccount, error)
	UpdateEmailAccount(ctx context.Context, a *models.EmailAccount) error

	GetTemplate(ctx context.Context, tenantID, projectID, templateID string) (*models.EmailTemplate, error)
}

type RoutingStore interface {
	ListActiveRoutingRules(ctx context.Context, tenantID, projectID string) ([]*models.RoutingRule, error)
	CreateRoutingLog(ctx context.Context, l *models.RoutingLog) error

	// CreateRoutingRule, ListRoutingRules, UpdateRoutingRule, and
	// DeleteRoutingRule back the admin CRUD surface in §6; unlike
	// ListActiveRoutingRules (evaluation-only, is_active=true) this lists
	// every rule regardless of state.
	CreateRoutingRule(ctx context.Context, r *models.RoutingRule) error
	ListRoutingRules(ctx context.Context, tenantID, projectID string) ([]*models.RoutingRule, error)
	UpdateRoutingRule(ctx context.Context, r *models.RoutingRule) error
	DeleteRoutingRule(ctx context.Context, tenantID, projectID, ruleID string) error
}

type SlaStore interface {
	GetActiveSlaByPriority(ctx context.Context, tenantID, projectID string, priority models.TicketPriority) (*models.SlaDefinition, error)
	CreateSlaViolation(ctx context.Context, v *models.SlaViolation) error
	HasUnresolvedViolation(ctx context.Context, ticketID string, kind models.SlaViolationType) (bool, error)
	ListViolations(ctx context.Context, ticketID string) ([]*models.SlaViolation, error)

	// CreateSlaDefinition, ListSlaDefinitions, UpdateSlaDefinition, and
	// DeleteSlaDefinition back the admin CRUD surface in §6.
	CreateSlaDefinition(ctx context.Context, s *models.SlaDefinition) error
	ListSlaDefinitions(ctx context.Context, tenantID, projectID string) ([]*models.SlaDefinition, error)
	UpdateSlaDefinition(ctx context.Context, s *models.SlaDefinition) error
	DeleteSlaDefinition(ctx context.Context, tenantID, projectID, slaID string) error
}

type TenantStore interface {
	GetCustomer(ctx context.Context, tenantID, projectID, customerID string) (*models.Customer, error)
	FindOrCreateCustomerByEmail(ctx context.Context, tenantID, projectID, email, name string) (*models.Customer, error)
	GetProject(ctx context.Context, tenantID, projectID string) (*models.Project, error)
}
