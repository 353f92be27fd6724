package broker

import (
	"context"
	"log/slog"
	"sync"
)

const subscriberBuffer = 64

// MemoryBroker is an in-process Broker for single-node installs and tests.
// A slow subscriber sheds messages instead of blocking publishers; shed
// messages are recovered by the catch-up path on the next resync.
type MemoryBroker struct {
	mu     sync.RWMutex
	topics map[string]map[int]chan []byte
	nextID int
	closed bool
}

// NewMemoryBroker creates an in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		topics: make(map[string]map[int]chan []byte),
	}
}

func (b *MemoryBroker) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.topics[topic] {
		select {
		case ch <- payload:
		default:
			slog.Warn("broker subscriber lagging, message shed",
				slog.String("topic", topic),
				slog.Int("subscriber", id))
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(_ context.Context, topic string) (<-chan []byte, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.topics[topic] == nil {
		b.topics[topic] = make(map[int]chan []byte)
	}
	id := b.nextID
	b.nextID++
	ch := make(chan []byte, subscriberBuffer)
	b.topics[topic][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs, ok := b.topics[topic]; ok {
			if _, ok := subs[id]; ok {
				delete(subs, id)
				close(ch)
			}
			if len(subs) == 0 {
				delete(b.topics, topic)
			}
		}
	}
	return ch, cancel, nil
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for topic, subs := range b.topics {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.topics, topic)
	}
	return nil
}
