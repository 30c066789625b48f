package cache

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiny-resolver/internal/dns"
)

func newTestCache(t *testing.T, opts Options) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisCache(rdb, opts), mr
}

func answer(name, ip string) *dns.Message {
	return &dns.Message{
		Header:   dns.Header{ID: 42, Flags: 0x8000},
		Question: dns.Question{Name: name, Type: dns.TypeA, Class: dns.ClassIN},
		Answers: []dns.ResourceRecord{{
			Name: name, Type: dns.TypeA, Class: dns.ClassIN, TTL: 60,
			Data: &dns.A{Addr: netip.MustParseAddr(ip)},
		}},
	}
}

func TestSetGet(t *testing.T) {
	c, mr := newTestCache(t, Options{})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "Example.com.", dns.TypeA, answer("example.com", "1.2.3.4"), time.Minute))
	assert.True(t, mr.Exists("dns:answer:example.com:A"))

	m, ok, err := c.Get(ctx, "example.com", dns.TypeA)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, m.Answers, 1)
	assert.Equal(t, "1.2.3.4", m.Answers[0].Data.String())

	_, ok, err = c.Get(ctx, "example.com", dns.TypeAAAA)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetCapsTTL(t *testing.T) {
	c, mr := newTestCache(t, Options{Prefix: "t:", MaxTTL: time.Minute})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "example.com", dns.TypeA, answer("example.com", "1.2.3.4"), 24*time.Hour))
	assert.Equal(t, time.Minute, mr.TTL("t:answer:example.com:A"))

	mr.FastForward(2 * time.Minute)
	_, ok, err := c.Get(ctx, "example.com", dns.TypeA)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetIgnoresZeroTTL(t *testing.T) {
	c, mr := newTestCache(t, Options{})
	require.NoError(t, c.Set(context.Background(), "example.com", dns.TypeA, answer("example.com", "1.2.3.4"), 0))
	assert.Empty(t, mr.Keys())
}

func TestGetDropsCorruptEntry(t *testing.T) {
	c, mr := newTestCache(t, Options{})
	require.NoError(t, mr.Set("dns:answer:example.com:A", "garbage"))

	_, ok, err := c.Get(context.Background(), "example.com", dns.TypeA)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("dns:answer:example.com:A"))
}

func TestPurge(t *testing.T) {
	c, mr := newTestCache(t, Options{})
	ctx := context.Background()
	for _, typ := range []dns.RecordType{dns.TypeA, dns.TypeAAAA, dns.TypeMX} {
		m := answer("example.com", "1.2.3.4")
		m.Question.Type = typ
		require.NoError(t, c.Set(ctx, "example.com", typ, m, time.Minute))
	}
	require.NoError(t, c.Set(ctx, "other.com", dns.TypeA, answer("other.com", "5.6.7.8"), time.Minute))

	n, err := c.Purge(ctx, "example.com", dns.TypeMX)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = c.Purge(ctx, "EXAMPLE.com", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, []string{"dns:answer:other.com:A"}, mr.Keys())
}

func TestTTL(t *testing.T) {
	c, _ := newTestCache(t, Options{})
	ctx := context.Background()

	d, err := c.TTL(ctx, "missing.com", dns.TypeA)
	require.NoError(t, err)
	assert.Zero(t, d)

	require.NoError(t, c.Set(ctx, "example.com", dns.TypeA, answer("example.com", "1.2.3.4"), time.Minute))
	d, err = c.TTL(ctx, "example.com", dns.TypeA)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)
}
