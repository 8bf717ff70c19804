// Package dnscache is an optional Redis-backed cache of resolved address
// sets. It exists purely to shave lookup latency on hot hostnames.
//
// The cache stores the complete address set per hostname and expires it on a
// short TTL, so a hostname whose DNS answer flips between validations cannot
// keep a stale "all public" answer alive past a typical DNS TTL. Every cache
// failure degrades to a live lookup; the cache can never turn a blocked
// answer into a safe one, because classification happens after resolution.
package dnscache

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/stacklume/fetchguard/internal/common/redis"
	"github.com/stacklume/fetchguard/internal/guard/resolver"
)

// MaxTTL caps the configured cache TTL. Anything longer would reintroduce
// the rebinding window the validator exists to close.
const MaxTTL = 5 * time.Minute

// DefaultTTL is used when the config does not set one
const DefaultTTL = 30 * time.Second

const keyPrefix = "fetchguard:dns:"

// CachingResolver wraps a Resolver with a Redis-backed address-set cache
type CachingResolver struct {
	next   resolver.Resolver
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// New builds a CachingResolver. The TTL is clamped to MaxTTL.
func New(next resolver.Resolver, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachingResolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if ttl > MaxTTL {
		ttl = MaxTTL
	}
	return &CachingResolver{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// LookupIP serves the cached address set when present, otherwise resolves
// live and stores the result. Cache read/write errors are logged and
// otherwise ignored; resolution errors are returned untouched so the
// validator's fail-closed handling sees them.
func (c *CachingResolver) LookupIP(ctx context.Context, host string) ([]net.IP, error) {
	key := cacheKey(host)

	if cached, err := c.client.Get(ctx, key); err == nil {
		if ips, ok := decodeAddressSet(cached); ok {
			c.logger.Debug("DNS cache hit",
				zap.String("host", host),
				zap.Int("addresses", len(ips)))
			return ips, nil
		}
		c.logger.Warn("Discarding undecodable DNS cache entry", zap.String("host", host))
	} else if err != redis.ErrNotFound {
		c.logger.Warn("DNS cache read failed, resolving live",
			zap.String("host", host),
			zap.Error(err))
	}

	ips, err := c.next.LookupIP(ctx, host)
	if err != nil {
		return nil, err
	}

	if encoded, err := encodeAddressSet(ips); err == nil {
		if err := c.client.SetEx(ctx, key, encoded, c.ttl); err != nil {
			c.logger.Warn("DNS cache write failed",
				zap.String("host", host),
				zap.Error(err))
		}
	}

	return ips, nil
}

// cacheKey hashes the hostname so arbitrary attacker-supplied names cannot
// produce oversized or unprintable Redis keys
func cacheKey(host string) string {
	return fmt.Sprintf("%s%016x", keyPrefix, xxhash.Sum64String(host))
}

func encodeAddressSet(ips []net.IP) (string, error) {
	strs := make([]string, 0, len(ips))
	for _, ip := range ips {
		strs = append(strs, ip.String())
	}
	data, err := json.Marshal(strs)
	return string(data), err
}

func decodeAddressSet(encoded string) ([]net.IP, bool) {
	var strs []string
	if err := json.Unmarshal([]byte(encoded), &strs); err != nil {
		return nil, false
	}
	if len(strs) == 0 {
		return nil, false
	}

	ips := make([]net.IP, 0, len(strs))
	for _, s := range strs {
		ip := net.ParseIP(s)
		if ip == nil {
			return nil, false
		}
		ips = append(ips, ip)
	}
	return ips, true
}
