// Package supervisor owns every piece of background work the conversation
// core runs outside a request: the email poller pool, the SLA violation
// scanner, and the trash reaper. Grounded on the teacher's
// IMAPPollerManager start/stop shape, generalized so HTTP handlers never
// spawn goroutines themselves (§9's redesign note).
package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const leaderLeaseKey = "convcore:task_supervisor:leader"

// LeaderLock lets multiple API processes share one task supervisor slot:
// only the lease holder runs the poller pool, trash reaper, and SLA scan.
// Nil in single-instance deployments, where this instance always leads.
type LeaderLock interface {
	TryAcquireLease(ctx context.Context, key, holderID string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, key, holderID string) error
}

// pollerPool and reaperTask narrow poller.Supervisor and trash.Reaper down
// to the start/stop lifecycle this package drives, the same way
// ticket.Manager depends on RoutingEngine/SlaLinker rather than concrete
// types.
type pollerPool interface {
	Start(ctx context.Context)
	Stop()
}

type reaperTask interface {
	Start(ctx context.Context)
	Stop()
}

// slaScanner narrows sla.Tracker to the one method the scan loop needs.
type slaScanner interface {
	ScanViolations(ctx context.Context) error
}

type Supervisor struct {
	poller pollerPool
	sla    slaScanner
	trash  reaperTask
	logger zerolog.Logger

	slaInterval time.Duration
	cancel      context.CancelFunc
	done        chan struct{}

	lock     LeaderLock
	holderID string
}

func New(p pollerPool, s slaScanner, r reaperTask, slaScanInterval time.Duration, logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		poller:      p,
		sla:         s,
		trash:       r,
		slaInterval: slaScanInterval,
		logger:      logger.With().Str("component", "task_supervisor").Logger(),
	}
}

// SetLeaderLock wires a distributed lease so only one running instance
// ticks background work, for deployments that run more than one API
// process against the same database.
func (s *Supervisor) SetLeaderLock(lock LeaderLock, holderID string) {
	s.lock = lock
	s.holderID = holderID
}

// Start boots the poller pool, trash reaper, and a ticking SLA scan loop.
// Call once from main; Stop releases all three on shutdown. With a
// LeaderLock wired in, Start polls for leadership and only runs the three
// behind it once acquired.
func (s *Supervisor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	if s.lock == nil {
		s.runLeaderWork(ctx)
		close(s.done)
		return
	}

	go func() {
		defer close(s.done)
		const renewInterval = 10 * time.Second
		const leaseTTL = 30 * time.Second
		ticker := time.NewTicker(renewInterval)
		defer ticker.Stop()

		leading := false
		for {
			acquired, err := s.lock.TryAcquireLease(ctx, leaderLeaseKey, s.holderID, leaseTTL)
			if err != nil {
				s.logger.Warn().Err(err).Msg("leader lease check failed")
			}
			if acquired && !leading {
				leading = true
				s.logger.Info().Msg("acquired task supervisor leadership")
				s.runLeaderWork(ctx)
			} else if !acquired && leading {
				leading = false
				s.logger.Warn().Msg("lost task supervisor leadership")
				s.stopLeaderWork()
			}

			select {
			case <-ctx.Done():
				if leading {
					_ = s.lock.ReleaseLease(context.Background(), leaderLeaseKey, s.holderID)
					s.stopLeaderWork()
				}
				return
			case <-ticker.C:
			}
		}
	}()
}

// runLeaderWork starts the poller pool, trash reaper, and SLA scan loop.
func (s *Supervisor) runLeaderWork(ctx context.Context) {
	s.poller.Start(ctx)
	s.trash.Start(ctx)

	go func() {
		interval := s.slaInterval
		if interval <= 0 {
			interval = time.Minute
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.sla.ScanViolations(ctx); err != nil {
					s.logger.Error().Err(err).Msg("sla scan failed")
				}
			}
		}
	}()
}

func (s *Supervisor) stopLeaderWork() {
	s.poller.Stop()
	s.trash.Stop()
}

func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.lock == nil {
		s.stopLeaderWork()
	}
	if s.done != nil {
		<-s.done
	}
}
