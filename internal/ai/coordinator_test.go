package ai

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bareuptime/convcore/internal/clock"
	"github.com/bareuptime/convcore/internal/config"
	"github.com/bareuptime/convcore/internal/idgen"
	"github.com/bareuptime/convcore/internal/models"
	"github.com/bareuptime/convcore/internal/textgen"
	"github.com/bareuptime/convcore/internal/ticket"
	"github.com/rs/zerolog"
)

// countingGenerator records how many times Generate ran and blocks on a
// gate until released, so tests can line up concurrent HandleTrigger calls
// onto a single in-flight generation.
type countingGenerator struct {
	calls int32
	gate  chan struct{}
	text  string
	err   error
}

func (g *countingGenerator) Generate(ctx context.Context, req textgen.Request) (string, float64, error) {
	atomic.AddInt32(&g.calls, 1)
	if g.gate != nil {
		<-g.gate
	}
	if g.err != nil {
		return "", 0, g.err
	}
	return g.text, 0.8, nil
}

func newTestCoordinator(t *testing.T) (*Coordinator, *ticket.Manager, *countingGenerator) {
	t.Helper()
	s := newFakeStore()
	c := clock.NewMutable(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	mgr := ticket.NewManager(s, c, idgen.Sequential("t"), zerolog.Nop())
	gen := &countingGenerator{text: "here is your answer"}
	coord := NewCoordinator(mgr, gen, config.AIConfig{RateLimitPerTicket: 2, RateLimitWindow: time.Minute}, c, true, zerolog.Nop())
	return coord, mgr, gen
}

// TestHandleTriggerSingleFlightCoalescesConcurrentCalls is the §4.4
// single-flight property: two HandleTrigger calls racing for the same
// ticket must only generate once.
func TestHandleTriggerSingleFlightCoalescesConcurrentCalls(t *testing.T) {
	coord, mgr, gen := newTestCoordinator(t)
	gen.gate = make(chan struct{})
	ctx := context.Background()

	tk, _, trigger, err := mgr.IngestCustomerMessage(ctx, "tenant1", "proj1", models.SourceWeb, "user1", "billing", "Help", "Hi", nil, nil)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if trigger == nil {
		t.Fatal("expected an ai trigger")
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			coord.HandleTrigger(ctx, "tenant1", "proj1", trigger)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(gen.gate)
	wg.Wait()

	if atomic.LoadInt32(&gen.calls) != 1 {
		t.Fatalf("generator called %d times, want 1 (single-flight coalescing)", gen.calls)
	}

	messages, _ := mgr.ListMessages(ctx, tk.ID)
	aiCount := 0
	for _, m := range messages {
		if m.Sender == models.SenderAI {
			aiCount++
		}
	}
	if aiCount != 1 {
		t.Fatalf("ai message count = %d, want 1", aiCount)
	}
}

// TestHandleTriggerRespectsRateLimit is S2: a second trigger within the
// window is rate limited and, with recordRateLimitNote on, leaves a system
// note instead of a second ai message.
func TestHandleTriggerRespectsRateLimit(t *testing.T) {
	coord, mgr, _ := newTestCoordinator(t)
	coord.bucket = newRateBucket(1, time.Minute)
	ctx := context.Background()

	tk, _, trigger, err := mgr.IngestCustomerMessage(ctx, "tenant1", "proj1", models.SourceWeb, "user1", "billing", "Help", "Hi", nil, nil)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	coord.HandleTrigger(ctx, "tenant1", "proj1", trigger)
	coord.HandleTrigger(ctx, "tenant1", "proj1", &ticket.AiTrigger{TicketID: tk.ID})

	messages, _ := mgr.ListMessages(ctx, tk.ID)
	var ai, system int
	for _, m := range messages {
		switch m.Sender {
		case models.SenderAI:
			ai++
		case models.SenderSystem:
			system++
		}
	}
	if ai != 1 {
		t.Fatalf("ai message count = %d, want 1", ai)
	}
	if system != 1 {
		t.Fatalf("system rate-limit note count = %d, want 1", system)
	}
}

// TestHandleTriggerDiscardsReplyAfterHumanTakeover is S3: if the ticket is
// escalated to human_assigned while generation is in flight, the
// commit-time re-check under the ticket lock must discard the reply.
func TestHandleTriggerDiscardsReplyAfterHumanTakeover(t *testing.T) {
	coord, mgr, gen := newTestCoordinator(t)
	gen.gate = make(chan struct{})
	ctx := context.Background()

	tk, _, trigger, err := mgr.IngestCustomerMessage(ctx, "tenant1", "proj1", models.SourceWeb, "user1", "billing", "Help", "Hi", nil, nil)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	done := make(chan struct{})
	go func() {
		coord.HandleTrigger(ctx, "tenant1", "proj1", trigger)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	if err := mgr.Escalate(ctx, tk.ID); err != nil {
		t.Fatalf("escalate: %v", err)
	}
	close(gen.gate)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleTrigger did not return")
	}

	messages, _ := mgr.ListMessages(ctx, tk.ID)
	for _, m := range messages {
		if m.Sender == models.SenderAI {
			t.Fatal("no ai message should be stored once the ticket was escalated mid-generation")
		}
	}
}
