package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ticket-shop/models"

	"github.com/redis/go-redis/v9"
)

// ledgerReader is the slice of the ticket ledger the cache falls back to.
type ledgerReader interface {
	Availability(ctx context.Context, eventID string, quantity int) (*models.Availability, error)
}

type cachedAvailability struct {
	Remaining int  `json:"remaining"`
	SoldOut   bool `json:"sold_out"`
}

// AvailabilityCache serves the advisory availability reads from redis with a
// short TTL, falling back to the ledger on a miss. It is advisory by
// definition: staleness here is harmless because the commit-time conditional
// update is the only correctness guarantee against oversell.
type AvailabilityCache struct {
	redis  *redis.Client
	ledger ledgerReader
	ttl    time.Duration
}

func NewAvailabilityCache(redisClient *redis.Client, ledger ledgerReader, ttl time.Duration) *AvailabilityCache {
	return &AvailabilityCache{redis: redisClient, ledger: ledger, ttl: ttl}
}

func availabilityKey(eventID string) string {
	return fmt.Sprintf("availability:%s", eventID)
}

func (c *AvailabilityCache) Availability(ctx context.Context, eventID string, quantity int) (*models.Availability, error) {
	key := availabilityKey(eventID)

	if data, err := c.redis.Get(ctx, key).Result(); err == nil {
		var cached cachedAvailability
		if err := json.Unmarshal([]byte(data), &cached); err == nil {
			return &models.Availability{
				Available: !cached.SoldOut && cached.Remaining >= quantity,
				Remaining: cached.Remaining,
				SoldOut:   cached.SoldOut,
			}, nil
		}
	}

	avail, err := c.ledger.Availability(ctx, eventID, quantity)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(cachedAvailability{Remaining: avail.Remaining, SoldOut: avail.SoldOut})
	if err == nil {
		// Best effort: a failed cache write just means the next read hits
		// the ledger again.
		c.redis.Set(ctx, key, data, c.ttl)
	}

	return avail, nil
}

// Invalidate drops the cached entry, called after every settlement so buyers
// see fresh counts immediately instead of after the TTL.
func (c *AvailabilityCache) Invalidate(ctx context.Context, eventID string) error {
	return c.redis.Del(ctx, availabilityKey(eventID)).Err()
}
