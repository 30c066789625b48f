package limiter

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// acquireScript takes one in-flight slot.
//
// KEYS[1] = per-client counter
// ARGV[1] = limit
// ARGV[2] = ttl in ms, refreshed on every acquire so a crashed holder
// cannot pin the counter forever
//
// Returns the new in-flight count, or 0 when the limit is reached.
var acquireScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
if n > tonumber(ARGV[1]) then
  redis.call('DECR', KEYS[1])
  return 0
end
return n
`)

// releaseScript returns a slot and removes the counter once it drains.
var releaseScript = redis.NewScript(`
local n = redis.call('DECR', KEYS[1])
if n <= 0 then
  redis.call('DEL', KEYS[1])
  return 0
end
return n
`)

// Slots counts in-flight resolve requests per client in Redis, so the cap
// holds across API replicas.
type Slots struct {
	rdb  *redis.Client
	opts Options
}

func NewSlots(rdb *redis.Client, opts Options) *Slots {
	return &Slots{rdb: rdb, opts: opts.withDefaults()}
}

// Acquire takes a slot for clientID. ok is false when the client is at its limit.
func (s *Slots) Acquire(ctx context.Context, clientID string) (ok bool, err error) {
	if s.rdb == nil {
		return false, errors.New("limiter: redis client is nil")
	}
	if clientID == "" {
		return false, errors.New("limiter: client_id is required")
	}
	n, err := acquireScript.Run(ctx, s.rdb, []string{s.opts.Key(clientID)}, s.opts.Limit, s.opts.TTL.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("limiter: acquire: %w", err)
	}
	return n > 0, nil
}

// Release returns a slot taken by Acquire.
func (s *Slots) Release(ctx context.Context, clientID string) error {
	if s.rdb == nil {
		return errors.New("limiter: redis client is nil")
	}
	if err := releaseScript.Run(ctx, s.rdb, []string{s.opts.Key(clientID)}).Err(); err != nil {
		return fmt.Errorf("limiter: release: %w", err)
	}
	return nil
}
