package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/healguid/booking-api/pkg/logging"
)

// Provider fetches availability for an event type.
type Provider interface {
	FetchAvailability(ctx context.Context, eventTypeID string) (*Availability, error)
}

// Cache is a read-through Redis cache in front of a Provider. It serves the
// availability browse endpoint only; booking revalidation always goes to the
// provider directly so a freshly fetched set is used.
type Cache struct {
	provider Provider
	redis    *redis.Client
	ttl      time.Duration
	logger   *logging.Logger
}

// NewCache wraps a provider with a Redis cache.
func NewCache(provider Provider, redisClient *redis.Client, ttl time.Duration, logger *logging.Logger) *Cache {
	if logger == nil {
		logger = logging.Default()
	}
	return &Cache{
		provider: provider,
		redis:    redisClient,
		ttl:      ttl,
		logger:   logger,
	}
}

// FetchAvailability returns the cached availability when fresh, otherwise
// fetches from the provider and stores the result. Cache failures degrade to
// a direct fetch; they never surface to the caller.
func (c *Cache) FetchAvailability(ctx context.Context, eventTypeID string) (*Availability, error) {
	key := c.key(eventTypeID)

	if data, err := c.redis.Get(ctx, key).Bytes(); err == nil {
		var cached Availability
		if err := json.Unmarshal(data, &cached); err == nil {
			return &cached, nil
		}
		c.logger.Warn("dropping corrupt availability cache entry", "key", key)
		c.redis.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("availability cache read failed", "error", err, "key", key)
	}

	avail, err := c.provider.FetchAvailability(ctx, eventTypeID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(avail); err == nil {
		if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("availability cache write failed", "error", err, "key", key)
		}
	}
	return avail, nil
}

func (c *Cache) key(eventTypeID string) string {
	return "availability:" + eventTypeID
}
