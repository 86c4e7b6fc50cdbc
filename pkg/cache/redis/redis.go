// Package redis provides a [cache.Backend] on top of a Redis server, so that
// several service instances can share NPC records and dialogue histories.
//
// Keys are stored as "<namespace>:<key>". Values carry no expiry.
package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrWong99/parley/pkg/cache"
)

// Compile-time interface assertion.
var _ cache.Backend = (*Backend)(nil)

// Options configures a Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Backend is a Redis-backed cache.
type Backend struct {
	client goredis.UniversalClient
}

// New connects to the Redis server described by opts and verifies the
// connection with a PING.
func New(ctx context.Context, opts Options) (*Backend, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis: address must not be empty")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opts.Addr, err)
	}
	return &Backend{client: client}, nil
}

// NewFromClient wraps an existing client. The Backend takes ownership and
// closes it on [Backend.Close].
func NewFromClient(client goredis.UniversalClient) *Backend {
	return &Backend{client: client}
}

// Get implements [cache.Backend].
func (b *Backend) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	v, err := b.client.Get(ctx, redisKey(namespace, key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis: get: %w", err)
	}
	return v, true, nil
}

// Set implements [cache.Backend].
func (b *Backend) Set(ctx context.Context, namespace, key string, value []byte) error {
	if err := b.client.Set(ctx, redisKey(namespace, key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis: set: %w", err)
	}
	return nil
}

// Ping checks connectivity. It is used by the readiness probe.
func (b *Backend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close implements [cache.Backend].
func (b *Backend) Close() error {
	return b.client.Close()
}

func redisKey(namespace, key string) string {
	return namespace + ":" + key
}
