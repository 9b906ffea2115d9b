package redisx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	values map[string]time.Duration
	err    error
}

func (f *fakeRedis) Exists(_ context.Context, keys ...string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, _ any, ttl time.Duration) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.values[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func TestDeduper_SeenAndMark(t *testing.T) {
	rdb := &fakeRedis{values: map[string]time.Duration{}}
	d := NewDeduper(rdb, "orders")
	ctx := context.Background()

	seen, err := d.Seen(ctx, "NewOrder:o1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, d.Mark(ctx, "NewOrder:o1"))
	assert.Equal(t, TTLDedup, rdb.values["dedup:orders:NewOrder:o1"])

	seen, err = d.Seen(ctx, "NewOrder:o1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestDeduper_Errors(t *testing.T) {
	d := NewDeduper(&fakeRedis{err: errors.New("connection refused")}, "orders")
	ctx := context.Background()

	_, err := d.Seen(ctx, "NewOrder:o1")
	assert.Error(t, err)
	assert.Error(t, d.Mark(ctx, "NewOrder:o1"))
}
