// Package stats provides simple local usage statistics for a messaging
// instance. This is a lightweight alternative to external monitoring.
package stats

import (
	"context"
	"sync"
	"time"

	"github.com/parleychat/parley/store"
)

// Stats is a point-in-time summary of instance activity.
type Stats struct {
	TotalRooms        int64     `json:"totalRooms"`
	TotalMessages     int64     `json:"totalMessages"`
	MessagesLastDay   int64     `json:"messagesLastDay"`
	MessagesLastWeek  int64     `json:"messagesLastWeek"`
	DeletedMessages   int64     `json:"deletedMessages"`
	LastMessageTime   time.Time `json:"lastMessageTime"`
	LastUpdated       time.Time `json:"lastUpdated"`
}

// Collector computes usage statistics from the message store, caching the
// result briefly so the stats endpoint cannot hammer the database.
type Collector struct {
	store *store.Store

	mu       sync.Mutex
	cached   *Stats
	cacheTTL time.Duration
}

// NewCollector creates a stats collector.
func NewCollector(st *store.Store) *Collector {
	return &Collector{store: st, cacheTTL: time.Minute}
}

// Collect returns current statistics, recomputing them when the cache is stale.
func (c *Collector) Collect(ctx context.Context) (*Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil && time.Since(c.cached.LastUpdated) < c.cacheTTL {
		return c.cached, nil
	}

	stats, err := c.compute(ctx)
	if err != nil {
		return nil, err
	}
	c.cached = stats
	return stats, nil
}

func (c *Collector) compute(ctx context.Context) (*Stats, error) {
	stats := &Stats{LastUpdated: time.Now()}

	rooms, err := c.store.ListRooms(ctx, &store.FindRoom{})
	if err != nil {
		return nil, err
	}
	stats.TotalRooms = int64(len(rooms))

	messages, err := c.store.ListChatMessages(ctx, &store.FindChatMessage{})
	if err != nil {
		return nil, err
	}

	dayAgo := time.Now().Add(-24 * time.Hour).UnixMilli()
	weekAgo := time.Now().Add(-7 * 24 * time.Hour).UnixMilli()
	var lastTs int64
	for _, m := range messages {
		if m.IsDeleted {
			stats.DeletedMessages++
			continue
		}
		stats.TotalMessages++
		if m.CreatedTs >= dayAgo {
			stats.MessagesLastDay++
		}
		if m.CreatedTs >= weekAgo {
			stats.MessagesLastWeek++
		}
		if m.CreatedTs > lastTs {
			lastTs = m.CreatedTs
		}
	}
	if lastTs > 0 {
		stats.LastMessageTime = time.UnixMilli(lastTs).UTC()
	}

	return stats, nil
}
