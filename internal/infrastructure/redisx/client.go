package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Dedup of queue messages: dedup:{service}:{message}
	KeyDedup = "dedup:%s:%s"

	TTLDedup = 48 * time.Hour
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// dedupClient is the part of redis.Cmdable the deduper needs.
type dedupClient interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Deduper remembers handled queue messages for TTLDedup.
type Deduper struct {
	rdb     dedupClient
	service string
	ttl     time.Duration
}

func NewDeduper(rdb dedupClient, service string) *Deduper {
	return &Deduper{rdb: rdb, service: service, ttl: TTLDedup}
}

func (d *Deduper) key(message string) string {
	return fmt.Sprintf(KeyDedup, d.service, message)
}

func (d *Deduper) Seen(ctx context.Context, message string) (bool, error) {
	n, err := d.rdb.Exists(ctx, d.key(message)).Result()
	return n > 0, err
}

func (d *Deduper) Mark(ctx context.Context, message string) error {
	return d.rdb.Set(ctx, d.key(message), "1", d.ttl).Err()
}
