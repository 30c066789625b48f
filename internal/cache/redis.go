package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"tiny-resolver/internal/dns"
)

// RedisCache stores packed DNS responses in Redis.
//
// Keys look like <prefix>answer:<name>:<TYPE>. Names are lower-cased so that
// lookups differing only in case share an entry.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
	maxTTL time.Duration
}

type Options struct {
	Prefix string
	// MaxTTL caps the TTL taken from the answers. Zero means no cap.
	MaxTTL time.Duration
}

func NewRedisCache(rdb *redis.Client, opts Options) *RedisCache {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "dns:"
	}
	return &RedisCache{rdb: rdb, prefix: prefix, maxTTL: opts.MaxTTL}
}

func (c *RedisCache) key(name string, t dns.RecordType) string {
	return fmt.Sprintf("%sanswer:%s:%s", c.prefix, canonical(name), t)
}

func canonical(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}

// Get returns the cached message. A miss is (nil, false, nil).
func (c *RedisCache) Get(ctx context.Context, name string, t dns.RecordType) (*dns.Message, bool, error) {
	b, err := c.rdb.Get(ctx, c.key(name, t)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	m, err := dns.Unpack(b)
	if err != nil {
		// unreadable entries are dropped rather than served
		_ = c.rdb.Del(ctx, c.key(name, t)).Err()
		return nil, false, nil
	}
	return m, true, nil
}

// Set stores m for ttl, capped at MaxTTL. Non-positive TTLs are ignored.
func (c *RedisCache) Set(ctx context.Context, name string, t dns.RecordType, m *dns.Message, ttl time.Duration) error {
	if c.maxTTL > 0 && ttl > c.maxTTL {
		ttl = c.maxTTL
	}
	if ttl <= 0 || m == nil {
		return nil
	}
	b, err := m.Pack()
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key(name, t), b, ttl).Err()
}

// Purge removes cached answers for name. A zero type removes every type.
// It returns the number of keys deleted.
func (c *RedisCache) Purge(ctx context.Context, name string, t dns.RecordType) (int64, error) {
	if t != 0 {
		return c.rdb.Del(ctx, c.key(name, t)).Result()
	}

	pattern := fmt.Sprintf("%sanswer:%s:*", c.prefix, canonical(name))
	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := c.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += n
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}

// TTL reports the remaining lifetime of a cached answer, or zero when absent.
func (c *RedisCache) TTL(ctx context.Context, name string, t dns.RecordType) (time.Duration, error) {
	d, err := c.rdb.PTTL(ctx, c.key(name, t)).Result()
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, nil
	}
	return d, nil
}
