package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestSlots(t *testing.T, opts Options) (*Slots, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewSlots(rdb, opts), mr
}

func TestSlots_AcquireUpToLimit(t *testing.T) {
	s, mr := newTestSlots(t, Options{Limit: 2, TTL: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := s.Acquire(ctx, "c1")
		if err != nil || !ok {
			t.Fatalf("acquire %d: ok=%v err=%v", i, ok, err)
		}
	}
	ok, err := s.Acquire(ctx, "c1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ok {
		t.Fatalf("expected third acquire to be rejected")
	}
	if v, _ := mr.Get(s.opts.Key("c1")); v != "2" {
		t.Fatalf("expected 2 in flight, got %q", v)
	}
	if mr.TTL(s.opts.Key("c1")) <= 0 {
		t.Fatalf("expected ttl on counter")
	}

	// other clients have their own budget
	if ok, err := s.Acquire(ctx, "c2"); err != nil || !ok {
		t.Fatalf("acquire c2: ok=%v err=%v", ok, err)
	}
}

func TestSlots_ReleaseDeletesAtZero(t *testing.T) {
	s, mr := newTestSlots(t, Options{Limit: 1})
	ctx := context.Background()

	if ok, err := s.Acquire(ctx, "c1"); err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}
	if err := s.Release(ctx, "c1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if mr.Exists(s.opts.Key("c1")) {
		t.Fatalf("expected key removed")
	}
}

func TestSlots_LeakedSlotsExpire(t *testing.T) {
	s, mr := newTestSlots(t, Options{Limit: 1, TTL: time.Second})
	ctx := context.Background()

	if ok, _ := s.Acquire(ctx, "c1"); !ok {
		t.Fatalf("expected first acquire")
	}
	mr.FastForward(2 * time.Second)
	if ok, err := s.Acquire(ctx, "c1"); err != nil || !ok {
		t.Fatalf("expected slot after ttl: ok=%v err=%v", ok, err)
	}
}

func TestSlots_ValidatesArguments(t *testing.T) {
	ctx := context.Background()
	if _, err := NewSlots(nil, Options{}).Acquire(ctx, "c1"); err == nil {
		t.Fatalf("expected nil client error")
	}
	s, _ := newTestSlots(t, Options{})
	if _, err := s.Acquire(ctx, ""); err == nil {
		t.Fatalf("expected client_id error")
	}
	if s.opts.Limit != 8 || s.opts.Prefix != "limit:resolve:" {
		t.Fatalf("unexpected defaults: %+v", s.opts)
	}
}
