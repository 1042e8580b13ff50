// Package poller runs one worker per active IMAP-enabled EmailAccount,
// reconciling pool membership against the account table on an interval.
// Grounded on the teacher's worker.IMAPPollerManager/IMAPPoller shape —
// this fills in the persistence, threading, and spam-gating logic the
// teacher left as TODOs.
package poller

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bareuptime/convcore/internal/ai"
	"github.com/bareuptime/convcore/internal/attachment"
	"github.com/bareuptime/convcore/internal/clock"
	"github.com/bareuptime/convcore/internal/config"
	"github.com/bareuptime/convcore/internal/coreerr"
	"github.com/bareuptime/convcore/internal/crypto"
	"github.com/bareuptime/convcore/internal/idgen"
	"github.com/bareuptime/convcore/internal/mail"
	"github.com/bareuptime/convcore/internal/models"
	"github.com/bareuptime/convcore/internal/spam"
	"github.com/bareuptime/convcore/internal/store"
	"github.com/bareuptime/convcore/internal/ticket"
	"github.com/bareuptime/convcore/internal/util"
	"github.com/rs/zerolog"
)

const defaultFolder = "INBOX"

// Supervisor owns the pool of per-account pollers so no request handler
// ever spawns background work directly (§9's redesign note).
type Supervisor struct {
	store       store.Store
	envelope    *crypto.Envelope
	fetcher     *mail.IMAPFetcher
	classifier  *spam.Classifier
	tickets     *ticket.Manager
	attachments *attachment.Coordinator
	aiCoord     *ai.Coordinator
	clock       clock.Clock
	ids         idgen.Source
	cfg         config.MailConfig
	logger      zerolog.Logger

	hostSemMu sync.Mutex
	hostSem   map[string]chan struct{}

	mu      sync.Mutex
	workers map[string]*worker
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewSupervisor(
	s store.Store,
	envelope *crypto.Envelope,
	fetcher *mail.IMAPFetcher,
	classifier *spam.Classifier,
	tickets *ticket.Manager,
	attachments *attachment.Coordinator,
	aiCoord *ai.Coordinator,
	c clock.Clock,
	ids idgen.Source,
	cfg config.MailConfig,
	logger zerolog.Logger,
) *Supervisor {
	return &Supervisor{
		store:       s,
		envelope:    envelope,
		fetcher:     fetcher,
		classifier:  classifier,
		tickets:     tickets,
		attachments: attachments,
		aiCoord:     aiCoord,
		clock:       c,
		ids:         ids,
		cfg:         cfg,
		logger:      logger.With().Str("component", "email_poller_supervisor").Logger(),
		hostSem:     make(map[string]chan struct{}),
		workers:     make(map[string]*worker),
	}
}

type worker struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Start launches the reconcile loop in a goroutine the caller's process
// owns; request handlers never call this directly.
func (s *Supervisor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.reconcile(ctx)

		ticker := time.NewTicker(s.cfg.ReconcileInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.stopAllWorkers()
				return
			case <-ticker.C:
				s.reconcile(ctx)
			}
		}
	}()
}

func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}

func (s *Supervisor) reconcile(ctx context.Context) {
	accounts, err := s.store.ListActiveIMAPAccounts(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list active imap accounts")
		return
	}

	live := make(map[string]bool, len(accounts))
	s.mu.Lock()
	for _, account := range accounts {
		live[account.ID] = true
		if _, exists := s.workers[account.ID]; exists {
			continue
		}
		s.workers[account.ID] = s.startWorker(ctx, account)
		s.logger.Info().Str("account_id", account.ID).Str("address", account.Address).Msg("started imap poller")
	}
	for id, w := range s.workers {
		if !live[id] {
			w.cancel()
			delete(s.workers, id)
			s.logger.Info().Str("account_id", id).Msg("stopped imap poller for inactive account")
		}
	}
	s.mu.Unlock()
}

func (s *Supervisor) stopAllWorkers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, w := range s.workers {
		w.cancel()
		<-w.done
		delete(s.workers, id)
	}
}

func (s *Supervisor) startWorker(ctx context.Context, account *models.EmailAccount) *worker {
	wctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.runWorker(wctx, account)
	}()
	return &worker{cancel: cancel, done: done}
}

func (s *Supervisor) runWorker(ctx context.Context, account *models.EmailAccount) {
	interval := s.cfg.PollInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	failures := account.ConsecutiveFailures

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		err := s.pollAccount(ctx, account)
		if err != nil {
			failures++
			disable := failures >= s.cfg.MaxConsecutiveFailures
			if recErr := s.store.RecordAccountFailure(ctx, account.ID, failures, disable); recErr != nil {
				s.logger.Error().Err(recErr).Str("account_id", account.ID).Msg("failed to record account failure")
			}
			s.logger.Warn().Err(err).Str("account_id", account.ID).Int("consecutive_failures", failures).Msg("imap poll failed")
			if disable {
				s.logger.Error().Str("account_id", account.ID).Msg("polling disabled after consecutive failures")
				return
			}
			interval = nextBackoff(interval, s.cfg.BackoffBase, s.cfg.BackoffCap)
			continue
		}

		if failures > 0 {
			if resetErr := s.store.ResetAccountFailures(ctx, account.ID); resetErr != nil {
				s.logger.Error().Err(resetErr).Str("account_id", account.ID).Msg("failed to reset account failures")
			}
			failures = 0
		}
		interval = s.cfg.PollInterval
	}
}

func nextBackoff(current, base, cap time.Duration) time.Duration {
	if current < base {
		return base
	}
	doubled := current * 2
	if doubled > cap {
		return cap
	}
	return doubled
}

// pollAccount runs one fetch/classify/bind/attach/ack cycle for a single
// account, rate-limited against its IMAP host by the supervisor's
// per-host semaphore.
func (s *Supervisor) pollAccount(ctx context.Context, account *models.EmailAccount) error {
	release, err := s.acquireHost(ctx, account.IMAPHost)
	if err != nil {
		return err
	}
	defer release()

	user, err := s.envelope.Open(crypto.Sealed(account.SealedIMAPUser))
	if err != nil {
		return fmt.Errorf("decrypt imap username: %w", err)
	}
	pass, err := s.envelope.Open(crypto.Sealed(account.SealedIMAPPass))
	if err != nil {
		return fmt.Errorf("decrypt imap password: %w", err)
	}

	messages, err := s.fetcher.Fetch(ctx, account.IMAPHost, account.IMAPPort, account.IMAPUseTLS, user, pass, defaultFolder, account.LastSeenUID)
	if err != nil {
		return coreerr.Transient("imap fetch", err)
	}
	if len(messages) == 0 {
		return nil
	}

	sort.Slice(messages, func(i, j int) bool { return messages[i].UID < messages[j].UID })

	var processedUIDs []uint32
	maxUID := account.LastSeenUID

	for _, msg := range messages {
		if err := s.processMessage(ctx, account, msg); err != nil {
			s.logger.Error().Err(err).Str("account_id", account.ID).Str("message_id", msg.MessageID).Msg("failed to process inbound message; skipping")
		}
		processedUIDs = append(processedUIDs, msg.UID)
		if msg.UID > maxUID {
			maxUID = msg.UID
		}
	}

	if err := s.fetcher.MarkSeen(ctx, account.IMAPHost, account.IMAPPort, account.IMAPUseTLS, user, pass, defaultFolder, processedUIDs); err != nil {
		s.logger.Error().Err(err).Str("account_id", account.ID).Msg("failed to mark messages seen")
	}

	if err := s.store.UpdateAccountCursor(ctx, account.ID, maxUID, s.clock.Now()); err != nil {
		return fmt.Errorf("update account cursor: %w", err)
	}
	account.LastSeenUID = maxUID
	return nil
}

// processMessage dedups, classifies, binds to a ticket, uploads
// attachments, and triggers an AI reply when eligible. A single message's
// failure never blocks the rest of the batch.
func (s *Supervisor) processMessage(ctx context.Context, account *models.EmailAccount, msg *models.ParsedEmail) error {
	if msg.MessageID != "" {
		if existing, err := s.store.GetEmailMessageByMessageID(ctx, account.ID, msg.MessageID); err == nil && existing != nil {
			return nil
		}
	}

	var replyTicketID string
	if msg.InReplyTo != "" {
		if tid, err := s.store.FindTicketByInReplyTo(ctx, account.ID, msg.InReplyTo); err == nil {
			replyTicketID = tid
		}
	}

	result := s.classifier.Classify(msg.Subject, msg.BodyText, msg.From, msg.Headers)
	isReply := replyTicketID != ""
	if result.Category != spam.CategoryHam && !isReply {
		if s.cfg.FilterLoggingEnabled {
			em := &models.EmailMessage{
				ID:             s.ids.UUID(),
				TenantID:       account.TenantID,
				ProjectID:      account.ProjectID,
				EmailAccountID: account.ID,
				MessageID:      msg.MessageID,
				Subject:        msg.Subject,
				From:           msg.From,
				To:             msg.To,
				Cc:             msg.Cc,
				Status:         models.EmailStatusFiltered,
				Direction:      models.DirectionInbound,
				CreatedAt:      s.clock.Now(),
			}
			if err := s.store.CreateEmailMessage(ctx, em); err != nil {
				s.logger.Error().Err(err).Msg("failed to record filtered email")
			}
		}
		s.logger.Info().Str("from", msg.From).Str("category", string(result.Category)).Strs("reasons", result.Reasons).Msg("inbound message filtered")
		return nil
	}

	fromAddr := util.ExtractEmailAddress(msg.From)
	customer, err := s.store.FindOrCreateCustomerByEmail(ctx, account.TenantID, account.ProjectID, fromAddr, msg.From)
	if err != nil {
		return fmt.Errorf("resolve customer: %w", err)
	}

	var inReplyToPtr *string
	if replyTicketID != "" {
		inReplyToPtr = &replyTicketID
	}

	t, _, trigger, err := s.tickets.IngestCustomerMessage(ctx, account.TenantID, account.ProjectID, models.SourceEmail, customer.ID, account.Address, msg.Subject, msg.BodyText, nil, inReplyToPtr)
	if err != nil {
		return fmt.Errorf("ingest customer message: %w", err)
	}

	for _, att := range msg.Attachments {
		_, err := s.attachments.Upload(ctx, account.TenantID, account.ProjectID, t.ID, nil, att.FileName, att.MimeType, att.Size, bytes.NewReader(att.Content), attachment.Requester{IsAdmin: true})
		if err != nil {
			s.logger.Error().Err(err).Str("ticket_id", t.ID).Str("file_name", att.FileName).Msg("failed to store inbound attachment")
		}
	}

	em := &models.EmailMessage{
		ID:             s.ids.UUID(),
		TenantID:       account.TenantID,
		ProjectID:      account.ProjectID,
		TicketID:       &t.ID,
		EmailAccountID: account.ID,
		MessageID:      msg.MessageID,
		InReplyTo:      nonEmptyPtr(msg.InReplyTo),
		Subject:        msg.Subject,
		BodyText:       nonEmptyPtr(msg.BodyText),
		BodyHTML:       nonEmptyPtr(msg.BodyHTML),
		From:           msg.From,
		To:             msg.To,
		Cc:             msg.Cc,
		Status:         models.EmailStatusReceived,
		Direction:      models.DirectionInbound,
		HasAttachments: len(msg.Attachments) > 0,
		CreatedAt:      s.clock.Now(),
	}
	if err := s.store.CreateEmailMessage(ctx, em); err != nil {
		return fmt.Errorf("record inbound email: %w", err)
	}

	if trigger != nil && s.aiCoord != nil {
		s.aiCoord.HandleTrigger(ctx, account.TenantID, account.ProjectID, trigger)
	}

	return nil
}

func nonEmptyPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// acquireHost blocks until a connection slot for host is free, bounded by
// MaxConnsPerHost, so a burst of accounts on the same provider doesn't
// trip its connection-rate limits.
func (s *Supervisor) acquireHost(ctx context.Context, host string) (func(), error) {
	s.hostSemMu.Lock()
	sem, ok := s.hostSem[host]
	if !ok {
		limit := s.cfg.MaxConnsPerHost
		if limit <= 0 {
			limit = 4
		}
		sem = make(chan struct{}, limit)
		s.hostSem[host] = sem
	}
	s.hostSemMu.Unlock()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
