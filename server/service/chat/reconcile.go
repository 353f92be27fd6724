// Package chat implements the conversation core: merging the message sources
// a client sees into one canonical view, and tracking per-user delivery so a
// reconnecting client can fetch exactly what it missed.
package chat

import (
	"sort"

	"github.com/parleychat/parley/store"
)

// Inputs are the three message sources of a room view plus deletions learned
// out-of-band. Initial is the historical fetch, Realtime the broadcast feed,
// Streaming the locally-growing assistant output.
type Inputs struct {
	Initial    []*store.ChatMessage
	Realtime   []*store.ChatMessage
	Streaming  []*store.ChatMessage
	DeletedIDs map[string]bool
}

// Reconcile merges the three sources into one ordered, deduplicated,
// visibility-filtered sequence for viewerID. It is pure: safe to recompute on
// every input change, and identical inputs yield identical output.
//
// Sources are processed initial → realtime → streaming. For a duplicated id
// the later source wins, except that a finalized message is never replaced by
// a still-streaming version of itself.
func Reconcile(viewerID string, in Inputs) []*store.ChatMessage {
	merged := make(map[string]*store.ChatMessage)
	for _, source := range [][]*store.ChatMessage{in.Initial, in.Realtime, in.Streaming} {
		for _, message := range source {
			if !includable(viewerID, message, in.DeletedIDs) {
				continue
			}
			if existing, ok := merged[message.ID]; ok && !existing.IsStreaming && message.IsStreaming {
				continue
			}
			merged[message.ID] = message
		}
	}

	list := make([]*store.ChatMessage, 0, len(merged))
	for _, message := range merged {
		list = append(list, message)
	}
	sort.SliceStable(list, func(i, j int) bool {
		ti, tj := list[i].CreatedTime(), list[j].CreatedTime()
		if ti.Equal(tj) {
			return list[i].ID < list[j].ID
		}
		return ti.Before(tj)
	})
	return list
}

// includable is the inclusion test. Malformed messages are dropped silently;
// a bad entry never fails the batch.
func includable(viewerID string, m *store.ChatMessage, deletedIDs map[string]bool) bool {
	if m == nil || m.ID == "" {
		return false
	}
	if m.IsDeleted || deletedIDs[m.ID] {
		return false
	}
	if m.User.Name == "" {
		return false
	}
	// An in-flight streaming message may be legitimately empty.
	if m.Content == "" && !m.IsStreaming {
		return false
	}
	if m.IsPrivate && viewerID != m.RequesterID && viewerID != m.User.ID {
		return false
	}
	return true
}
