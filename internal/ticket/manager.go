// Package ticket owns the mutations of Ticket and Message: routing, the
// poller, and the AI coordinator call back into Manager's exported
// operations for status, assignment, priority and messages. Two ticket
// fields are written outside it through the store: sla.Tracker.LinkSla sets
// sla_id, and the routing engine's set_category action sets category.
package ticket

import (
	"context"
	"fmt"
	"time"

	"github.com/bareuptime/convcore/internal/clock"
	"github.com/bareuptime/convcore/internal/coreerr"
	"github.com/bareuptime/convcore/internal/idgen"
	"github.com/bareuptime/convcore/internal/models"
	"github.com/bareuptime/convcore/internal/store"
	"github.com/rs/zerolog"
)

// RoutingEngine is the narrow interface Manager needs to trigger rule
// evaluation on new-ticket creation. Defined here (not imported from
// internal/routing) so the two packages don't cycle; wired post-construction
// via SetRoutingEngine, the same two-phase pattern the teacher uses to wire
// its WebSocket handler pair together in cmd/api/main.go.
type RoutingEngine interface {
	Evaluate(ctx context.Context, t *models.Ticket, firstMessageBody string) error
}

// SlaLinker links a newly created or re-prioritized ticket to its matching
// active SlaDefinition. Same two-phase wiring rationale as RoutingEngine.
type SlaLinker interface {
	LinkSla(ctx context.Context, t *models.Ticket) error
}

// AiTrigger signals that IngestCustomerMessage produced a message eligible
// for an automated reply; the caller hands this to the AI coordinator.
type AiTrigger struct {
	TicketID string
}

type Manager struct {
	store  store.Store
	locks  *keyedMutex
	clock  clock.Clock
	ids    idgen.Source
	logger zerolog.Logger

	routing RoutingEngine
	sla     SlaLinker
}

func NewManager(s store.Store, c clock.Clock, ids idgen.Source, logger zerolog.Logger) *Manager {
	return &Manager{
		store:  s,
		locks:  newKeyedMutex(),
		clock:  c,
		ids:    ids,
		logger: logger.With().Str("component", "ticket_manager").Logger(),
	}
}

func (m *Manager) SetRoutingEngine(r RoutingEngine) { m.routing = r }
func (m *Manager) SetSlaLinker(s SlaLinker)         { m.sla = s }

// IngestCustomerMessage locates an open continuation or creates a new
// ticket, appends the customer's message, runs routing once per new
// ticket, and returns an AiTrigger iff the ticket is unassigned, open, and
// the channel permits AI.
func (m *Manager) IngestCustomerMessage(
	ctx context.Context,
	tenantID, projectID string,
	channel models.TicketSource,
	userID, context_, subject, body string,
	priority *models.TicketPriority,
	emailInReplyToTicketID *string,
) (*models.Ticket, *models.Message, *AiTrigger, error) {

	ticketID, isNew, err := m.resolveTicket(ctx, tenantID, projectID, channel, userID, context_, subject, priority, emailInReplyToTicketID)
	if err != nil {
		return nil, nil, nil, err
	}

	t, msg, err := m.lockAndAppendCustomerMessage(ctx, tenantID, projectID, ticketID, body)
	if err != nil {
		return nil, nil, nil, err
	}

	// Routing runs outside the per-ticket lock: a matching rule's
	// assign_to_agent/set_priority action calls back into AssignToAdmin or
	// UpdatePriority, which each take the same lock themselves.
	if isNew && m.routing != nil {
		if err := m.routing.Evaluate(ctx, t, body); err != nil {
			m.logger.Error().Err(err).Str("ticket_id", t.ID).Msg("routing evaluation failed")
		}
		// Routing may have mutated priority/assignment; reload before
		// deciding AI eligibility.
		reloaded, err := m.store.GetTicket(ctx, tenantID, projectID, t.ID)
		if err == nil {
			t = reloaded
		}
	}

	var trigger *AiTrigger
	if t.AssignedTo == nil && t.Status == models.TicketStatusOpen && channel.AIEligible() {
		trigger = &AiTrigger{TicketID: t.ID}
	}

	return t, msg, trigger, nil
}

// lockAndAppendCustomerMessage holds the per-ticket lock only for the fetch
// and append, releasing it before IngestCustomerMessage runs routing.
func (m *Manager) lockAndAppendCustomerMessage(ctx context.Context, tenantID, projectID, ticketID, body string) (*models.Ticket, *models.Message, error) {
	unlock := m.locks.Lock(ticketID)
	defer unlock()

	t, err := m.store.GetTicket(ctx, tenantID, projectID, ticketID)
	if err != nil {
		return nil, nil, fmt.Errorf("get ticket: %w", err)
	}

	msg := &models.Message{
		ID:        m.ids.UUID(),
		TicketID:  t.ID,
		Sender:    models.SenderCustomer,
		Text:      body,
		CreatedAt: m.clock.Now(),
	}
	if err := m.store.AppendMessage(ctx, msg); err != nil {
		return nil, nil, fmt.Errorf("append customer message: %w", err)
	}
	return t, msg, nil
}

// resolveTicket finds an open continuation or creates a new ticket,
// returning its id and whether it was newly created.
func (m *Manager) resolveTicket(
	ctx context.Context,
	tenantID, projectID string,
	channel models.TicketSource,
	userID, context_, subject string,
	priority *models.TicketPriority,
	emailInReplyToTicketID *string,
) (string, bool, error) {
	if emailInReplyToTicketID != nil && *emailInReplyToTicketID != "" {
		return *emailInReplyToTicketID, false, nil
	}

	if userID != "" {
		key := models.ContinuationKey{Context: context_, Subject: subject, UserID: userID}
		existing, err := m.store.FindOpenContinuation(ctx, tenantID, projectID, key)
		if err == nil {
			return existing.ID, false, nil
		}
		if !coreerr.Is(err, coreerr.KindNotFound) {
			return "", false, fmt.Errorf("find open continuation: %w", err)
		}
	}

	p := models.PriorityMedium
	if priority != nil {
		p = *priority
	}

	var userIDPtr *string
	if userID != "" {
		userIDPtr = &userID
	}

	t := &models.Ticket{
		ID:       m.ids.UUID(),
		TenantID: tenantID,
		ProjectID: projectID,
		UserID:   userIDPtr,
		Context:  context_,
		Subject:  subject,
		Status:   models.TicketStatusOpen,
		Priority: p,
		Source:   channel,
	}
	if err := m.store.CreateTicket(ctx, t); err != nil {
		return "", false, fmt.Errorf("create ticket: %w", err)
	}
	if m.sla != nil {
		if err := m.sla.LinkSla(ctx, t); err != nil {
			m.logger.Warn().Err(err).Str("ticket_id", t.ID).Msg("sla linking failed")
		}
	}

	return t.ID, true, nil
}

// AppendAiReply is rejected if the ticket is no longer open or has been
// assigned — the coordinator must call this under its own re-check after
// any suspension (generation, rate-limit wait), and this method re-verifies
// under the per-ticket lock regardless, since the caller's view may be stale.
func (m *Manager) AppendAiReply(ctx context.Context, tenantID, projectID, ticketID, text string, confidence float64, success bool) (*models.Message, error) {
	unlock := m.locks.Lock(ticketID)
	defer unlock()

	t, err := m.store.GetTicket(ctx, tenantID, projectID, ticketID)
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	if t.Status != models.TicketStatusOpen || t.AssignedTo != nil {
		return nil, coreerr.InvalidTransition("ticket no longer eligible for an ai reply")
	}

	msg := &models.Message{
		ID:         m.ids.UUID(),
		TicketID:   ticketID,
		Sender:     models.SenderAI,
		Text:       text,
		Confidence: &confidence,
		Success:    &success,
		CreatedAt:  m.clock.Now(),
	}
	if err := m.store.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("append ai message: %w", err)
	}
	return msg, nil
}

// AppendSystemMessage is used by the AI coordinator for its rate-limit and
// discarded-reply notes — any caller that needs to leave an audit trail
// without going through the full ingest path.
func (m *Manager) AppendSystemMessage(ctx context.Context, ticketID, text string) (*models.Message, error) {
	unlock := m.locks.Lock(ticketID)
	defer unlock()

	return m.appendSystemMessageLocked(ctx, ticketID, text)
}

// appendSystemMessageLocked appends a system message without taking the
// per-ticket lock, for callers (CloseTicket) that already hold it.
func (m *Manager) appendSystemMessageLocked(ctx context.Context, ticketID, text string) (*models.Message, error) {
	msg := &models.Message{
		ID:        m.ids.UUID(),
		TicketID:  ticketID,
		Sender:    models.SenderSystem,
		Text:      text,
		CreatedAt: m.clock.Now(),
	}
	if err := m.store.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("append system message: %w", err)
	}
	return msg, nil
}

func (m *Manager) AppendAdminReply(ctx context.Context, tenantID, projectID, ticketID, adminID, text string) (*models.Message, error) {
	unlock := m.locks.Lock(ticketID)
	defer unlock()

	t, err := m.store.GetTicket(ctx, tenantID, projectID, ticketID)
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	if t.IsDeleted {
		return nil, coreerr.InvalidTransition("ticket is deleted")
	}

	now := m.clock.Now()
	if t.FirstResponseAt == nil {
		t.FirstResponseAt = &now
	}
	t.LastResponseAt = &now
	if err := m.store.UpdateTicket(ctx, t); err != nil {
		return nil, fmt.Errorf("update ticket response times: %w", err)
	}

	msg := &models.Message{
		ID:        m.ids.UUID(),
		TicketID:  ticketID,
		Sender:    models.SenderAdmin,
		Text:      text,
		CreatedAt: now,
	}
	if err := m.store.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("append admin message: %w", err)
	}
	return msg, nil
}

// AssignToAdmin transitions open -> human_assigned. Idempotent if already
// assigned to the same admin; forbidden on a closed ticket.
func (m *Manager) AssignToAdmin(ctx context.Context, ticketID, adminID string) error {
	unlock := m.locks.Lock(ticketID)
	defer unlock()

	t, err := m.getUnscoped(ctx, ticketID)
	if err != nil {
		return err
	}

	if t.AssignedTo != nil && *t.AssignedTo == adminID && t.Status == models.TicketStatusHumanAssigned {
		return nil
	}
	if t.Status == models.TicketStatusClosed {
		return coreerr.InvalidTransition("cannot assign a closed ticket")
	}

	t.AssignedTo = &adminID
	t.Status = models.TicketStatusHumanAssigned
	if err := m.store.UpdateTicket(ctx, t); err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}
	return nil
}

// CloseTicket transitions any state to closed and stamps ResolvedAt. Fails
// on already-deleted tickets.
func (m *Manager) CloseTicket(ctx context.Context, ticketID, by string) error {
	unlock := m.locks.Lock(ticketID)
	defer unlock()

	t, err := m.getUnscoped(ctx, ticketID)
	if err != nil {
		return err
	}
	if t.IsDeleted {
		return coreerr.InvalidTransition("cannot close a deleted ticket")
	}

	now := m.clock.Now()
	t.Status = models.TicketStatusClosed
	t.ResolvedAt = &now
	if err := m.store.UpdateTicket(ctx, t); err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}

	if _, err := m.appendSystemMessageLocked(ctx, ticketID, fmt.Sprintf("ticket closed by %s", by)); err != nil {
		m.logger.Warn().Err(err).Str("ticket_id", ticketID).Msg("failed to append close audit message")
	}
	return nil
}

// SoftDelete requires every ticket already be closed; the set succeeds or
// fails atomically — no torn batch.
func (m *Manager) SoftDelete(ctx context.Context, ticketIDs []string) error {
	unlock := m.locks.LockSorted(ticketIDs)
	defer unlock()

	return m.store.WithTx(ctx, func(ctx context.Context) error {
		tickets := make([]*models.Ticket, 0, len(ticketIDs))
		for _, id := range ticketIDs {
			t, err := m.getUnscoped(ctx, id)
			if err != nil {
				return err
			}
			if t.Status != models.TicketStatusClosed {
				return coreerr.InvalidTransition(fmt.Sprintf("ticket %s is not closed", id))
			}
			tickets = append(tickets, t)
		}

		now := m.clock.Now()
		for _, t := range tickets {
			t.IsDeleted = true
			t.DeletedAt = &now
			if err := m.store.UpdateTicket(ctx, t); err != nil {
				return fmt.Errorf("soft delete ticket %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

func (m *Manager) Restore(ctx context.Context, ticketIDs []string) error {
	unlock := m.locks.LockSorted(ticketIDs)
	defer unlock()

	return m.store.WithTx(ctx, func(ctx context.Context) error {
		for _, id := range ticketIDs {
			t, err := m.getUnscoped(ctx, id)
			if err != nil {
				return err
			}
			t.IsDeleted = false
			t.DeletedAt = nil
			if err := m.store.UpdateTicket(ctx, t); err != nil {
				return fmt.Errorf("restore ticket %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

// HardDelete removes ticket rows and their attachments from both the store
// and the blob backend. deleteAttachments abstracts the Attachment
// Coordinator so this package doesn't import it directly.
func (m *Manager) HardDelete(ctx context.Context, ticketIDs []string, deleteAttachments func(ctx context.Context, ticketID string) error) error {
	unlock := m.locks.LockSorted(ticketIDs)
	defer unlock()

	return m.store.WithTx(ctx, func(ctx context.Context) error {
		for _, id := range ticketIDs {
			t, err := m.getUnscoped(ctx, id)
			if err != nil {
				return err
			}
			if deleteAttachments != nil {
				if err := deleteAttachments(ctx, id); err != nil {
					return fmt.Errorf("delete attachments for ticket %s: %w", id, err)
				}
			}
			if err := m.store.DeleteTicket(ctx, t.TenantID, t.ProjectID, id); err != nil {
				return fmt.Errorf("hard delete ticket %s: %w", id, err)
			}
		}
		return nil
	})
}

// Escalate transitions open -> human_assigned without naming a specific
// admin, handing the ticket to the unassigned human queue. Distinct from
// AssignToAdmin, which both escalates and assigns in one step.
func (m *Manager) Escalate(ctx context.Context, ticketID string) error {
	unlock := m.locks.Lock(ticketID)
	defer unlock()

	t, err := m.getUnscoped(ctx, ticketID)
	if err != nil {
		return err
	}
	if t.Status == models.TicketStatusClosed {
		return coreerr.InvalidTransition("cannot escalate a closed ticket")
	}
	if t.Status == models.TicketStatusHumanAssigned {
		return nil
	}

	t.Status = models.TicketStatusHumanAssigned
	if err := m.store.UpdateTicket(ctx, t); err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}
	return nil
}

// UpdatePriority optionally re-links the matching active SlaDefinition.
func (m *Manager) UpdatePriority(ctx context.Context, ticketID string, priority models.TicketPriority) error {
	unlock := m.locks.Lock(ticketID)
	defer unlock()

	t, err := m.getUnscoped(ctx, ticketID)
	if err != nil {
		return err
	}
	t.Priority = priority
	if err := m.store.UpdateTicket(ctx, t); err != nil {
		return fmt.Errorf("update ticket priority: %w", err)
	}
	if m.sla != nil {
		if err := m.sla.LinkSla(ctx, t); err != nil {
			m.logger.Warn().Err(err).Str("ticket_id", ticketID).Msg("sla re-linking failed")
		}
	}
	return nil
}

func (m *Manager) GetTicket(ctx context.Context, tenantID, projectID, ticketID string) (*models.Ticket, error) {
	return m.store.GetTicket(ctx, tenantID, projectID, ticketID)
}

func (m *Manager) ListMessages(ctx context.Context, ticketID string) ([]*models.Message, error) {
	return m.store.ListMessages(ctx, ticketID)
}

func (m *Manager) ListTickets(ctx context.Context, tenantID, projectID string, filters store.TicketFilters, page store.Pagination) ([]*models.Ticket, string, error) {
	return m.store.ListTickets(ctx, tenantID, projectID, filters, page)
}

// ListDeletedBefore is used by the trash reaper to find purge candidates.
func (m *Manager) ListDeletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Ticket, error) {
	return m.store.ListDeletedBefore(ctx, cutoff, limit)
}

// getUnscoped fetches a ticket by id alone, for internal callers (routing,
// SLA, reaper) that operate across tenants or already resolved scoping
// elsewhere and only carry a ticket id.
func (m *Manager) getUnscoped(ctx context.Context, ticketID string) (*models.Ticket, error) {
	return m.store.GetTicketUnscoped(ctx, ticketID)
}
