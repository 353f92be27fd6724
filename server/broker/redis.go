package broker

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisBroker fans rooms out over Redis pub/sub so multiple parley instances
// see each other's sends. Redis pub/sub is fire-and-forget: a disconnected
// subscriber misses messages, which the catch-up path recovers.
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker creates a Redis-backed broker and verifies connectivity.
func NewRedisBroker(cfg *RedisConfig) (*RedisBroker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to connect to redis at %s", cfg.Addr)
	}

	return &RedisBroker{client: client}, nil
}

func (b *RedisBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.client.Publish(ctx, channelName(topic), payload).Err(); err != nil {
		return errors.Wrap(err, "redis publish")
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (<-chan []byte, func(), error) {
	sub := b.client.Subscribe(ctx, channelName(topic))
	// Force the subscription to be established before returning so the
	// caller cannot miss messages published right after Subscribe.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, errors.Wrap(err, "redis subscribe")
	}

	out := make(chan []byte, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() {
		if err := sub.Close(); err != nil {
			slog.Warn("failed to close redis subscription", slog.String("topic", topic), slog.String("error", err.Error()))
		}
	}
	return out, cancel, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

func channelName(topic string) string {
	return "parley:room:" + topic
}
