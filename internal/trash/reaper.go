// Package trash periodically purges tickets that have been soft-deleted
// past their retention window. Lifecycle (ticker + context cancellation) is
// grounded on the teacher's IMAPPollerManager.Start/Stop shape, reused here
// for a single periodic scan instead of a per-account loop.
package trash

import (
	"context"
	"time"

	"github.com/bareuptime/convcore/internal/attachment"
	"github.com/bareuptime/convcore/internal/clock"
	"github.com/bareuptime/convcore/internal/ticket"
	"github.com/rs/zerolog"
)

type Reaper struct {
	tickets      *ticket.Manager
	attachments  *attachment.Coordinator
	clock        clock.Clock
	retention    time.Duration
	scanInterval time.Duration
	logger       zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewReaper(tickets *ticket.Manager, attachments *attachment.Coordinator, c clock.Clock, retention, scanInterval time.Duration, logger zerolog.Logger) *Reaper {
	return &Reaper{
		tickets:      tickets,
		attachments:  attachments,
		clock:        c,
		retention:    retention,
		scanInterval: scanInterval,
		logger:       logger.With().Str("component", "trash_reaper").Logger(),
	}
}

// Start launches the scan loop in a goroutine owned by the caller's task
// supervisor; request handlers never call this directly.
func (r *Reaper) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.scanInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.logger.Info().Msg("trash reaper stopping")
				return
			case <-ticker.C:
				if err := r.scanOnce(ctx); err != nil {
					r.logger.Error().Err(err).Msg("trash scan failed")
				}
			}
		}
	}()
}

func (r *Reaper) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.done != nil {
		<-r.done
	}
}

func (r *Reaper) scanOnce(ctx context.Context) error {
	cutoff := r.clock.Now().Add(-r.retention)
	tickets, err := r.tickets.ListDeletedBefore(ctx, cutoff, 200)
	if err != nil {
		return err
	}

	for _, t := range tickets {
		if err := r.tickets.HardDelete(ctx, []string{t.ID}, r.attachments.DeleteAllForTicket); err != nil {
			// Per-ticket failures are logged and retried on the next tick.
			r.logger.Error().Err(err).Str("ticket_id", t.ID).Msg("hard delete failed")
			continue
		}
		r.logger.Info().Str("ticket_id", t.ID).Msg("ticket purged from trash")
	}
	return nil
}
