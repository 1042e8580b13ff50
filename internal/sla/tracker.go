// Package sla links tickets to priority-scoped SlaDefinitions, answers
// GetSlaStatus queries, and scans for violations on a periodic tick.
// Grounded on the policy-lookup-by-priority / expected-vs-actual /
// violation-record shape of other_examples' rich-crm-backend SLA service,
// adapted to this module's SlaDefinition field names and zerolog/sqlx idiom.
package sla

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

type Tracker struct {
	store  store.Store
	clock  clock.Clock
	ids    idgen.Source
	logger zerolog.Logger
}

func NewTracker(s store.Store, c clock.Clock, ids idgen.Source, logger zerolog.Logger) *Tracker {
	return &Tracker{store: s, clock: c, ids: ids, logger: logger.With().Str("component", "sla_tracker").Logger()}
}

// LinkSla selects the active SlaDefinition matching the ticket's priority
// and persists it on the ticket row. A ticket with no matching policy is
// left unlinked — not an error condition.
func (t *Tracker) LinkSla(ctx context.Context, tk *models.Ticket) error {
	def, err := t.store.GetActiveSlaByPriority(ctx, tk.TenantID, tk.ProjectID, tk.Priority)
	if err != nil {
		if coreerr.Is(err, coreerr.KindNotFound) {
			return nil
		}
		return fmt.Errorf("get active sla: %w", err)
	}

	tk.SlaID = &def.ID
	if err := t.store.UpdateTicket(ctx, tk); err != nil {
		return fmt.Errorf("link sla to ticket: %w", err)
	}
	return nil
}

// GetSlaStatus reports expected/actual/violation for both response and
// resolution deadlines.
func (t *Tracker) GetSlaStatus(ctx context.Context, tenantID, projectID, ticketID string) (*models.SlaStatus, error) {
	tk, err := t.store.GetTicket(ctx, tenantID, projectID, ticketID)
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	if tk.SlaID == nil {
		return &models.SlaStatus{}, nil
	}

	def, err := t.store.GetActiveSlaByPriority(ctx, tenantID, projectID, tk.Priority)
	if err != nil {
		if coreerr.Is(err, coreerr.KindNotFound) {
			return &models.SlaStatus{}, nil
		}
		return nil, fmt.Errorf("get sla definition: %w", err)
	}

	now := t.clock.Now()
	responseExpected := addMinutes(tk.CreatedAt, def.ResponseTimeMinutes, def)
	resolutionExpected := addMinutes(tk.CreatedAt, def.ResolutionTimeMinutes, def)

	response := models.SlaDeadline{Expected: responseExpected, Actual: tk.FirstResponseAt}
	if tk.FirstResponseAt != nil {
		response.Violation = tk.FirstResponseAt.After(responseExpected)
	} else {
		response.Violation = now.After(responseExpected)
	}

	resolution := models.SlaDeadline{Expected: resolutionExpected, Actual: tk.ResolvedAt}
	if tk.ResolvedAt != nil {
		resolution.Violation = tk.ResolvedAt.After(resolutionExpected)
	} else {
		resolution.Violation = now.After(resolutionExpected)
	}

	return &models.SlaStatus{Sla: def, Response: response, Resolution: resolution}, nil
}

// ScanViolations runs on a periodic tick (default every minute). It finds
// open tickets whose response or resolution deadline has passed without a
// recorded violation and inserts SlaViolation rows.
func (t *Tracker) ScanViolations(ctx context.Context) error {
	now := t.clock.Now()
	overdue, err := t.store.ListOverdue(ctx, now, 500)
	if err != nil {
		return fmt.Errorf("list overdue tickets: %w", err)
	}

	for _, tk := range overdue {
		if tk.SlaID == nil {
			continue
		}
		def, err := t.store.GetActiveSlaByPriority(ctx, tk.TenantID, tk.ProjectID, tk.Priority)
		if err != nil {
			if coreerr.Is(err, coreerr.KindNotFound) {
				continue
			}
			t.logger.Error().Err(err).Str("ticket_id", tk.ID).Msg("load sla definition failed")
			continue
		}

		if tk.FirstResponseAt == nil {
			if err := t.maybeRecordViolation(ctx, tk, def, models.ViolationResponseTime, now,
				addMinutes(tk.CreatedAt, def.ResponseTimeMinutes, def)); err != nil {
				t.logger.Error().Err(err).Str("ticket_id", tk.ID).Msg("record response violation failed")
			}
		}
		if tk.ResolvedAt == nil {
			if err := t.maybeRecordViolation(ctx, tk, def, models.ViolationResolutionTime, now,
				addMinutes(tk.CreatedAt, def.ResolutionTimeMinutes, def)); err != nil {
				t.logger.Error().Err(err).Str("ticket_id", tk.ID).Msg("record resolution violation failed")
			}
		}
	}
	return nil
}

func (t *Tracker) maybeRecordViolation(ctx context.Context, tk *models.Ticket, def *models.SlaDefinition, kind models.SlaViolationType, now, expected time.Time) error {
	if !now.After(expected) {
		return nil
	}

	already, err := t.store.HasUnresolvedViolation(ctx, tk.ID, kind)
	if err != nil {
		return err
	}
	if already {
		return nil
	}

	minutesPast := int(now.Sub(expected).Minutes())
	v := &models.SlaViolation{
		ID:               t.ids.UUID(),
		TicketID:         tk.ID,
		SlaID:            def.ID,
		ViolationType:    kind,
		ExpectedTime:     expected,
		ViolationMinutes: &minutesPast,
		IsResolved:       false,
	}
	return t.store.CreateSlaViolation(ctx, v)
}
