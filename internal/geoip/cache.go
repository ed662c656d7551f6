package geoip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bizpulse/internal/alert"
	"bizpulse/internal/constants"
)

// CachedLocator serves repeat lookups from Redis. Failed lookups are not cached.
type CachedLocator struct {
	next   Locator
	client redis.UniversalClient
	ttl    time.Duration
}

func NewCachedLocator(next Locator, client redis.UniversalClient, ttl time.Duration) *CachedLocator {
	if ttl <= 0 {
		ttl = constants.DefaultGeoIPCacheTTL
	}
	return &CachedLocator{next: next, client: client, ttl: ttl}
}

func (c *CachedLocator) Locate(ctx context.Context, ip string) (*alert.GeoLocation, error) {
	key := constants.CacheKeyPrefixGeoIP + ip

	val, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var loc alert.GeoLocation
		if jsonErr := json.Unmarshal(val, &loc); jsonErr == nil {
			return &loc, nil
		}
	case !errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	loc, err := c.next.Locate(ctx, ip)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(loc)
	if err != nil {
		return loc, nil
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return loc, fmt.Errorf("redis set failed: %w", err)
	}
	return loc, nil
}
