// Package broker provides the room broadcast channel: at-least-once,
// possibly-duplicate delivery. Consumers must dedup by message id; the
// reconciliation engine is the correctness backstop.
package broker

import (
	"context"

	"github.com/pkg/errors"

	"github.com/parleychat/parley/internal/profile"
)

// Broker is a publish/subscribe channel keyed by topic (one topic per room).
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe returns a payload stream for topic and a cancel function
	// that releases the subscription and closes the channel.
	Subscribe(ctx context.Context, topic string) (<-chan []byte, func(), error)
	Close() error
}

// New creates a broker based on profile.
func New(p *profile.Profile) (Broker, error) {
	switch p.BrokerDriver {
	case "", "memory":
		return NewMemoryBroker(), nil
	case "redis":
		return NewRedisBroker(&RedisConfig{
			Addr:     p.RedisAddr,
			Password: p.RedisPassword,
			DB:       p.RedisDB,
		})
	case "kafka":
		return NewKafkaBroker(&KafkaConfig{
			Brokers: splitBrokers(p.KafkaBrokers),
			Topic:   p.KafkaTopic,
		}), nil
	default:
		return nil, errors.Errorf("unknown broker driver: %s", p.BrokerDriver)
	}
}
