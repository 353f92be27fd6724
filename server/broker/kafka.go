package broker

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// KafkaConfig holds the Kafka connection configuration.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// KafkaBroker publishes all rooms onto one Kafka topic, keyed by room, so
// ordering holds per room. Each subscriber reads from the latest offset and
// filters on the key; history before subscription belongs to catch-up, not
// the broadcast channel.
type KafkaBroker struct {
	config *KafkaConfig
	writer *kafka.Writer
}

// NewKafkaBroker creates a Kafka-backed broker.
func NewKafkaBroker(cfg *KafkaConfig) *KafkaBroker {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
	}
	return &KafkaBroker{config: cfg, writer: writer}
}

func (b *KafkaBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	err := b.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(topic),
		Value: payload,
	})
	if err != nil {
		return errors.Wrap(err, "kafka publish")
	}
	return nil
}

func (b *KafkaBroker) Subscribe(ctx context.Context, topic string) (<-chan []byte, func(), error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     b.config.Brokers,
		Topic:       b.config.Topic,
		StartOffset: kafka.LastOffset,
	})

	subCtx, stop := context.WithCancel(ctx)
	out := make(chan []byte, subscriberBuffer)
	go func() {
		defer close(out)
		for {
			msg, err := reader.ReadMessage(subCtx)
			if err != nil {
				if subCtx.Err() == nil {
					slog.Warn("kafka read failed", slog.String("topic", topic), slog.String("error", err.Error()))
				}
				return
			}
			if string(msg.Key) != topic {
				continue
			}
			select {
			case out <- msg.Value:
			case <-subCtx.Done():
				return
			}
		}
	}()

	cancel := func() {
		stop()
		if err := reader.Close(); err != nil {
			slog.Warn("failed to close kafka reader", slog.String("topic", topic), slog.String("error", err.Error()))
		}
	}
	return out, cancel, nil
}

func (b *KafkaBroker) Close() error {
	return b.writer.Close()
}

func splitBrokers(s string) []string {
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
