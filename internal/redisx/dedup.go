package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Dedup is a fast-path duplicate filter for inbound events. The database
// stays the source of truth; a Redis outage only costs the shortcut.
type Dedup struct {
	rdb   *redis.Client
	scope string
	ttl   time.Duration
}

func NewDedup(rdb *redis.Client, scope string) *Dedup {
	return &Dedup{rdb: rdb, scope: scope, ttl: TTLDedup}
}

func (d *Dedup) key(id string) string { return fmt.Sprintf(KeyDedup, d.scope, id) }

// Seen reports whether id was marked within the TTL.
func (d *Dedup) Seen(ctx context.Context, id string) (bool, error) {
	return Exists(ctx, d.rdb, d.key(id))
}

// Mark records id as handled.
func (d *Dedup) Mark(ctx context.Context, id string) error {
	return d.rdb.Set(ctx, d.key(id), "1", d.ttl).Err()
}
