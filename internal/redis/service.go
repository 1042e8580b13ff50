// Package redis backs the task supervisor's leader lock: when more than
// one API process runs, only the lease holder ticks the SLA scan and
// trash reaper, so neither work is duplicated across instances. Built on
// the teacher's go-redis/v9 client, generalized from its OTP/session
// caching use into a SET-NX lease.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	URL       string   // e.g. redis://localhost:6379/0
	Sentinels []string // Redis Sentinel addrs, used when URL is empty
}

// Service wraps a Redis client used as a distributed lease store.
type Service struct {
	client redis.UniversalClient
}

func NewService(cfg Config) (*Service, error) {
	var rdb redis.UniversalClient

	switch {
	case cfg.URL != "":
		opt, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		rdb = redis.NewClient(opt)
	case len(cfg.Sentinels) > 0:
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:      cfg.Sentinels,
			MasterName: "mymaster",
		})
	default:
		return nil, fmt.Errorf("either URL or Sentinels must be configured")
	}

	return &Service{client: rdb}, nil
}

func (s *Service) Close() error {
	return s.client.Close()
}

func (s *Service) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// TryAcquireLease attempts to take (or renew, if already held) a named
// lease for ttl. Returns true if this caller now holds it.
func (s *Service) TryAcquireLease(ctx context.Context, key, holderID string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, holderID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	if ok {
		return true, nil
	}

	current, err := s.client.Get(ctx, key).Result()
	if err != nil && err != redis.Nil {
		return false, fmt.Errorf("read lease %s: %w", key, err)
	}
	if current != holderID {
		return false, nil
	}
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return false, fmt.Errorf("renew lease %s: %w", key, err)
	}
	return true, nil
}

// ReleaseLease drops a held lease so another holder can acquire it
// immediately instead of waiting out the TTL.
func (s *Service) ReleaseLease(ctx context.Context, key, holderID string) error {
	current, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return fmt.Errorf("read lease %s: %w", key, err)
	}
	if current != holderID {
		return nil
	}
	return s.client.Del(ctx, key).Err()
}
