// Package ai coordinates automated replies: single-flight per ticket,
// sliding-window rate limiting, mandatory output sanitization, and a
// re-check under the ticket lock before any reply is committed.
package ai

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/bareuptime/convcore/internal/clock"
	"github.com/bareuptime/convcore/internal/config"
	"github.com/bareuptime/convcore/internal/coreerr"
	"github.com/bareuptime/convcore/internal/models"
	"github.com/bareuptime/convcore/internal/ticket"
	"github.com/bareuptime/convcore/internal/textgen"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const defaultPreamble = "You are a helpful support agent. Answer concisely and only from the conversation provided."

var retryDelays = []time.Duration{500 * time.Millisecond, 1 * time.Second, 2 * time.Second}

// Coordinator runs one AI generation at a time per ticket (coalescing late
// arrivals onto the in-flight call via singleflight.Group) and enforces the
// sliding-window limit before ever calling the generator.
type Coordinator struct {
	tickets   *ticket.Manager
	generator textgen.TextGenerator
	clock     clock.Clock
	logger    zerolog.Logger

	flight *singleflight.Group
	bucket *rateBucket

	recordRateLimitNote bool
}

func NewCoordinator(tickets *ticket.Manager, generator textgen.TextGenerator, cfg config.AIConfig, c clock.Clock, recordRateLimitNote bool, logger zerolog.Logger) *Coordinator {
	maxPerWindow := cfg.RateLimitPerTicket
	if maxPerWindow <= 0 {
		maxPerWindow = 2
	}
	window := cfg.RateLimitWindow
	if window <= 0 {
		window = 60 * time.Second
	}
	return &Coordinator{
		tickets:              tickets,
		generator:            generator,
		clock:                c,
		logger:               logger.With().Str("component", "ai_coordinator").Logger(),
		flight:               &singleflight.Group{},
		bucket:               newRateBucket(maxPerWindow, window),
		recordRateLimitNote:  recordRateLimitNote,
	}
}

// HandleTrigger runs (or coalesces onto) a single AI generation for
// trigger.TicketID. Errors are logged, not returned, since the caller is
// IngestCustomerMessage's post-ingest hook and must not block the customer
// response on AI outcome.
func (c *Coordinator) HandleTrigger(ctx context.Context, tenantID, projectID string, trigger *ticket.AiTrigger) {
	if trigger == nil {
		return
	}
	_, _, _ = c.flight.Do(trigger.TicketID, func() (interface{}, error) {
		if err := c.generateAndCommit(ctx, tenantID, projectID, trigger.TicketID); err != nil {
			c.logger.Warn().Err(err).Str("ticket_id", trigger.TicketID).Msg("ai reply not stored")
		}
		return nil, nil
	})
}

func (c *Coordinator) generateAndCommit(ctx context.Context, tenantID, projectID, ticketID string) error {
	now := c.clock.Now()
	if !c.bucket.allow(ticketID, now) {
		if c.recordRateLimitNote {
			if _, err := c.tickets.AppendSystemMessage(ctx, ticketID, "AI reply suppressed: rate limit reached"); err != nil {
				c.logger.Warn().Err(err).Str("ticket_id", ticketID).Msg("failed to record rate-limit note")
			}
		}
		return coreerr.RateLimited("ai reply window exhausted for ticket")
	}

	t, err := c.tickets.GetTicket(ctx, tenantID, projectID, ticketID)
	if err != nil {
		return fmt.Errorf("get ticket: %w", err)
	}
	if t.AssignedTo != nil || t.Status != models.TicketStatusOpen {
		return nil
	}

	history, err := c.tickets.ListMessages(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}

	req := textgen.Request{
		Context:  t.Context,
		Subject:  t.Subject,
		History:  toHistory(history),
		Preamble: defaultPreamble,
	}

	text, confidence, genErr := c.generateWithRetry(ctx, req)
	success := genErr == nil
	if genErr != nil {
		if coreerr.KindOf(genErr) == coreerr.KindPermanent {
			c.logger.Error().Err(genErr).Str("ticket_id", ticketID).Msg("ai generation failed permanently")
		}
		return genErr
	}

	text = sanitizeOutput(text)

	_, err = c.tickets.AppendAiReply(ctx, tenantID, projectID, ticketID, text, confidence, success)
	if err != nil {
		if coreerr.Is(err, coreerr.KindInvalidTransition) {
			// Ticket was taken over or closed between generation and
			// commit (§4.4 re-check). No message stored, not an error.
			if _, sysErr := c.tickets.AppendSystemMessage(ctx, ticketID, "AI reply discarded: ticket state changed"); sysErr != nil {
				c.logger.Warn().Err(sysErr).Str("ticket_id", ticketID).Msg("failed to record discard note")
			}
			return nil
		}
		return fmt.Errorf("append ai reply: %w", err)
	}
	return nil
}

func (c *Coordinator) generateWithRetry(ctx context.Context, req textgen.Request) (string, float64, error) {
	var lastErr error
	for attempt := 0; attempt <= len(retryDelays); attempt++ {
		text, confidence, err := c.generator.Generate(ctx, req)
		if err == nil {
			return text, confidence, nil
		}
		lastErr = err
		if coreerr.KindOf(err) == coreerr.KindPermanent {
			return "", 0, err
		}
		if attempt == len(retryDelays) {
			break
		}
		delay := jitter(retryDelays[attempt])
		select {
		case <-ctx.Done():
			return "", 0, ctx.Err()
		case <-time.After(delay):
		}
	}
	return "", 0, coreerr.Transient("ai generation failed after retries", lastErr)
}

func jitter(base time.Duration) time.Duration {
	delta := time.Duration(rand.Int63n(int64(base) / 2))
	return base - delta/2 + delta
}

func toHistory(messages []*models.Message) []textgen.Message {
	out := make([]textgen.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, textgen.Message{Sender: string(m.Sender), Text: m.Text})
	}
	return out
}
