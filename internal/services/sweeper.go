package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ticket-shop/internal/payment"
	"ticket-shop/internal/status"

	"github.com/redis/go-redis/v9"
)

const deadlineIndexKey = "payments:deadlines"

// failer is the slice of the orchestrator the sweeper needs.
type failer interface {
	Fail(ctx context.Context, ref, reason string) (*payment.SettlementResult, error)
}

// Sweeper fails pending attempts whose payment window has expired, using the
// same idempotent transition any external reconciliation job would use. The
// deadline index lives in a redis sorted set scored by expiry time, written
// by the orchestrator at attempt creation.
type Sweeper struct {
	redis    *redis.Client
	settler  failer
	interval time.Duration
}

func NewSweeper(redisClient *redis.Client, interval time.Duration) *Sweeper {
	return &Sweeper{redis: redisClient, interval: interval}
}

// SetSettler wires the orchestrator in after construction: the orchestrator
// also holds the sweeper as its deadline index, so one of the two has to be
// bound late.
func (s *Sweeper) SetSettler(settler failer) {
	s.settler = settler
}

// Track records when the attempt with the given gateway reference expires.
func (s *Sweeper) Track(ctx context.Context, ref string, deadline time.Time) error {
	return s.redis.ZAdd(ctx, deadlineIndexKey, redis.Z{
		Score:  float64(deadline.Unix()),
		Member: ref,
	}).Err()
}

// Clear drops the deadline for a settled attempt.
func (s *Sweeper) Clear(ctx context.Context, ref string) error {
	return s.redis.ZRem(ctx, deadlineIndexKey, ref).Err()
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sweeper: stopping")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if s.settler == nil {
		return
	}

	refs, err := s.redis.ZRangeByScore(ctx, deadlineIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", time.Now().Unix()),
	}).Result()
	if err != nil {
		slog.Error("sweeper: reading deadline index", "error", err)
		return
	}

	for _, ref := range refs {
		_, err := s.settler.Fail(ctx, ref, payment.ReasonExpired)
		switch {
		case err == nil, errors.Is(err, status.ErrAttemptNotFound):
			// Settled (or never persisted); either way the deadline is done.
			if err := s.redis.ZRem(ctx, deadlineIndexKey, ref).Err(); err != nil {
				slog.Warn("sweeper: dropping deadline", "gateway_ref", ref, "error", err)
			}
		default:
			// Leave the entry for the next sweep.
			slog.Error("sweeper: expiring attempt", "gateway_ref", ref, "error", err)
		}
	}
}
