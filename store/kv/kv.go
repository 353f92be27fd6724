// Package kv provides a small key-value store with per-key expiry. It backs
// the delivery pointers: losing a key degrades to a redundant catch-up fetch,
// never to message loss, so implementations favor availability over durability.
package kv

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/parleychat/parley/internal/profile"
)

// Store is a key-value store with TTL semantics.
type Store interface {
	// Get returns the value for key. The bool is false when the key is
	// absent or expired.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes key with the given TTL, replacing any previous value.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error
	Close() error
}

// NewStore creates a KV store based on profile. "memory" serves single-node
// installs; "redis" shares pointers across instances.
func NewStore(p *profile.Profile) (Store, error) {
	switch p.KVDriver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(&RedisConfig{
			Addr:     p.RedisAddr,
			Password: p.RedisPassword,
			DB:       p.RedisDB,
		})
	default:
		return nil, errors.Errorf("unknown kv driver: %s", p.KVDriver)
	}
}
