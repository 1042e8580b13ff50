package attachment

import (
	"context"
	"sync"
	"time"

	"github.com/bareuptime/convcore/internal/coreerr"
	"github.com/bareuptime/convcore/internal/models"
	"github.com/bareuptime/convcore/internal/store"
)

// fakeStore is a minimal in-memory store.Store, the same hand-rolled-fake
// shape used across this module's other package tests.
type fakeStore struct {
	mu          sync.Mutex
	tickets     map[string]*models.Ticket
	attachments map[string]*models.Attachment
}

func newFakeStore() *fakeStore {
	return &fakeStore{tickets: map[string]*models.Ticket{}, attachments: map[string]*models.Attachment{}}
}

func (s *fakeStore) CreateTicket(ctx context.Context, t *models.Ticket) error { return nil }
func (s *fakeStore) GetTicket(ctx context.Context, tenantID, projectID, ticketID string) (*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return nil, coreerr.NotFound("ticket not found")
	}
	cp := *t
	return &cp, nil
}
func (s *fakeStore) GetTicketUnscoped(ctx context.Context, ticketID string) (*models.Ticket, error) {
	return s.GetTicket(ctx, "", "", ticketID)
}
func (s *fakeStore) GetTicketByNumber(ctx context.Context, tenantID string, number int) (*models.Ticket, error) {
	return nil, coreerr.NotFound("not found")
}
func (s *fakeStore) FindOpenContinuation(ctx context.Context, tenantID, projectID string, key models.ContinuationKey) (*models.Ticket, error) {
	return nil, coreerr.NotFound("no continuation")
}
func (s *fakeStore) UpdateTicket(ctx context.Context, t *models.Ticket) error { return nil }
func (s *fakeStore) DeleteTicket(ctx context.Context, tenantID, projectID, ticketID string) error {
	return nil
}
func (s *fakeStore) ListTickets(ctx context.Context, tenantID, projectID string, filters store.TicketFilters, page store.Pagination) ([]*models.Ticket, string, error) {
	return nil, "", nil
}
func (s *fakeStore) ListDeletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Ticket, error) {
	return nil, nil
}
func (s *fakeStore) ListOverdue(ctx context.Context, asOf time.Time, limit int) ([]*models.Ticket, error) {
	return nil, nil
}

func (s *fakeStore) AppendMessage(ctx context.Context, m *models.Message) error { return nil }
func (s *fakeStore) ListMessages(ctx context.Context, ticketID string) ([]*models.Message, error) {
	return nil, nil
}

func (s *fakeStore) FindOrCreateTag(ctx context.Context, tenantID, projectID, name string) (*models.Tag, error) {
	return &models.Tag{ID: name, Name: name}, nil
}
func (s *fakeStore) AttachTag(ctx context.Context, ticketID, tagID string) error { return nil }
func (s *fakeStore) ListTicketTags(ctx context.Context, ticketID string) ([]*models.Tag, error) {
	return nil, nil
}
func (s *fakeStore) SetCategory(ctx context.Context, ticketID, category string) error { return nil }

func (s *fakeStore) CreateAttachment(ctx context.Context, a *models.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.attachments[a.ID] = &cp
	return nil
}
func (s *fakeStore) GetAttachment(ctx context.Context, attachmentID string) (*models.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attachments[attachmentID]
	if !ok {
		return nil, coreerr.NotFound("attachment not found")
	}
	cp := *a
	return &cp, nil
}
func (s *fakeStore) DeleteAttachment(ctx context.Context, attachmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attachments, attachmentID)
	return nil
}
func (s *fakeStore) ListAttachmentsByTicket(ctx context.Context, ticketID string) ([]*models.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Attachment
	for _, a := range s.attachments {
		if a.TicketID == ticketID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) CreateEmailMessage(ctx context.Context, em *models.EmailMessage) error { return nil }
func (s *fakeStore) GetEmailMessageByMessageID(ctx context.Context, accountID, messageID string) (*models.EmailMessage, error) {
	return nil, coreerr.NotFound("not found")
}
func (s *fakeStore) FindTicketByInReplyTo(ctx context.Context, accountID, inReplyTo string) (string, error) {
	return "", coreerr.NotFound("not found")
}
func (s *fakeStore) UpdateEmailMessage(ctx context.Context, em *models.EmailMessage) error { return nil }
func (s *fakeStore) ListEmailMessagesByTicket(ctx context.Context, ticketID string) ([]*models.EmailMessage, error) {
	return nil, nil
}
func (s *fakeStore) LatestInboundMessageID(ctx context.Context, ticketID string) (string, error) {
	return "", nil
}
func (s *fakeStore) ListActiveIMAPAccounts(ctx context.Context) ([]*models.EmailAccount, error) {
	return nil, nil
}
func (s *fakeStore) GetEmailAccount(ctx context.Context, accountID string) (*models.EmailAccount, error) {
	return nil, coreerr.NotFound("not found")
}
func (s *fakeStore) DefaultSenderAccount(ctx context.Context, tenantID, projectID string) (*models.EmailAccount, error) {
	return nil, coreerr.NotFound("not found")
}
func (s *fakeStore) UpdateAccountCursor(ctx context.Context, accountID string, lastSeenUID uint32, polledAt time.Time) error {
	return nil
}
func (s *fakeStore) RecordAccountFailure(ctx context.Context, accountID string, consecutiveFailures int, disablePolling bool) error {
	return nil
}
func (s *fakeStore) ResetAccountFailures(ctx context.Context, accountID string) error { return nil }
func (s *fakeStore) CreateEmailAccount(ctx context.Context, a *models.EmailAccount) error {
	return nil
}
func (s *fakeStore) ListEmailAccounts(ctx context.Context, tenantID, projectID string) ([]*models.EmailAccount, error) {
	return nil, nil
}
func (s *fakeStore) UpdateEmailAccount(ctx context.Context, a *models.EmailAccount) error {
	return nil
}
func (s *fakeStore) GetTemplate(ctx context.Context, tenantID, projectID, templateID string) (*models.EmailTemplate, error) {
	return nil, coreerr.NotFound("not found")
}

func (s *fakeStore) ListActiveRoutingRules(ctx context.Context, tenantID, projectID string) ([]*models.RoutingRule, error) {
	return nil, nil
}
func (s *fakeStore) CreateRoutingLog(ctx context.Context, l *models.RoutingLog) error { return nil }
func (s *fakeStore) CreateRoutingRule(ctx context.Context, r *models.RoutingRule) error {
	return nil
}
func (s *fakeStore) ListRoutingRules(ctx context.Context, tenantID, projectID string) ([]*models.RoutingRule, error) {
	return nil, nil
}
func (s *fakeStore) UpdateRoutingRule(ctx context.Context, r *models.RoutingRule) error { return nil }
func (s *fakeStore) DeleteRoutingRule(ctx context.Context, tenantID, projectID, ruleID string) error {
	return nil
}

func (s *fakeStore) GetActiveSlaByPriority(ctx context.Context, tenantID, projectID string, priority models.TicketPriority) (*models.SlaDefinition, error) {
	return nil, coreerr.NotFound("no sla")
}
func (s *fakeStore) CreateSlaViolation(ctx context.Context, v *models.SlaViolation) error {
	return nil
}
func (s *fakeStore) HasUnresolvedViolation(ctx context.Context, ticketID string, kind models.SlaViolationType) (bool, error) {
	return false, nil
}
func (s *fakeStore) ListViolations(ctx context.Context, ticketID string) ([]*models.SlaViolation, error) {
	return nil, nil
}
func (s *fakeStore) CreateSlaDefinition(ctx context.Context, def *models.SlaDefinition) error {
	return nil
}
func (s *fakeStore) ListSlaDefinitions(ctx context.Context, tenantID, projectID string) ([]*models.SlaDefinition, error) {
	return nil, nil
}
func (s *fakeStore) UpdateSlaDefinition(ctx context.Context, def *models.SlaDefinition) error {
	return nil
}
func (s *fakeStore) DeleteSlaDefinition(ctx context.Context, tenantID, projectID, slaID string) error {
	return nil
}

func (s *fakeStore) GetCustomer(ctx context.Context, tenantID, projectID, customerID string) (*models.Customer, error) {
	return nil, coreerr.NotFound("not found")
}
func (s *fakeStore) FindOrCreateCustomerByEmail(ctx context.Context, tenantID, projectID, email, name string) (*models.Customer, error) {
	return &models.Customer{ID: email, Email: email, Name: name}, nil
}
func (s *fakeStore) GetProject(ctx context.Context, tenantID, projectID string) (*models.Project, error) {
	return nil, coreerr.NotFound("not found")
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var _ store.Store = (*fakeStore)(nil)
