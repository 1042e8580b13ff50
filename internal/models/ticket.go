package models

import "time"

// TicketStatus is the finite state a Ticket can occupy. Closed is terminal
// except for the soft-delete/restore toggle, which never changes status.
type TicketStatus string

const (
	TicketStatusOpen          TicketStatus = "open"
	TicketStatusHumanAssigned TicketStatus = "human_assigned"
	TicketStatusClosed        TicketStatus = "closed"
)

type TicketPriority string

const (
	PriorityLow    TicketPriority = "low"
	PriorityMedium TicketPriority = "medium"
	PriorityHigh   TicketPriority = "high"
	PriorityUrgent TicketPriority = "urgent"
)

type TicketSource string

const (
	SourceWeb   TicketSource = "web"
	SourceEmail TicketSource = "email"
	SourceAPI   TicketSource = "api"
	SourceChat  TicketSource = "chat"
	SourcePhone TicketSource = "phone"
	SourceSocial TicketSource = "social"
)

// AIEligible reports whether a ticket created on this channel may ever
// receive an automated reply.
func (s TicketSource) AIEligible() bool {
	switch s {
	case SourceWeb, SourceEmail, SourceAPI:
		return true
	default:
		return false
	}
}

// Ticket is the aggregate root for a support conversation. Mutation is only
// ever performed by internal/ticket.Manager.
type Ticket struct {
	ID              string
	TenantID        string
	ProjectID       string
	Number          int
	OrganizationID  *string
	UserID          *string
	Context         string
	Subject         string
	Status          TicketStatus
	Priority        TicketPriority
	Source          TicketSource
	Category        *string
	AssignedTo      *string
	SlaID           *string
	IsDeleted       bool
	DeletedAt       *time.Time
	FirstResponseAt *time.Time
	LastResponseAt  *time.Time
	ResolvedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ContinuationKey identifies the (context, subject, user) triple used to
// find an open continuation instead of opening a duplicate ticket.
type ContinuationKey struct {
	Context string
	Subject string
	UserID  string
}

type MessageSender string

const (
	SenderCustomer MessageSender = "customer"
	SenderAI       MessageSender = "ai"
	SenderAdmin    MessageSender = "admin"
	SenderSystem   MessageSender = "system"
)

// Message is an immutable entry in a ticket's thread. Ordering within a
// ticket is by CreatedAt, stamped by the Manager after it acquires the
// per-ticket lock so ordering is never racy.
type Message struct {
	ID         string
	TicketID   string
	Sender     MessageSender
	Text       string
	Confidence *float64
	Success    *bool
	CreatedAt  time.Time
}

// Tag is an org-scoped label; the set of tags on a ticket is unordered and
// unique by Name within a tenant/project.
type Tag struct {
	ID        string
	TenantID  string
	ProjectID string
	Name      string
	Color     string
	CreatedAt time.Time
}

type Category struct {
	ID        string
	TenantID  string
	ProjectID string
	Name      string
	CreatedAt time.Time
}

type TicketTag struct {
	TicketID string
	TagID    string
}

// Attachment is owned by a Ticket, optionally further scoped to one
// Message — acyclic ownership per the ticket→message→attachment chain.
type Attachment struct {
	ID         string
	TicketID   string
	MessageID  *string
	FileName   string
	FilePath   string
	FileSize   int64
	MimeType   string
	UploadedBy string
	CreatedAt  time.Time
}
