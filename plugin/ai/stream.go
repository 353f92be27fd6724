package ai

import (
	"context"
	"log/slog"
)

// replayChunkSize is the slice size used when a complete answer is replayed
// to the client as if it had streamed.
const replayChunkSize = 160

// Chunk event types.
const (
	ChunkContent = "content"
	ChunkError   = "error"
)

// Chunk is one streaming event delivered to the client. Content carries the
// delta for this event; FullContent carries the cumulative text so far.
type Chunk struct {
	Type        string `json:"type"`
	MessageID   string `json:"messageId"`
	Content     string `json:"content"`
	FullContent string `json:"fullContent,omitempty"`
}

// EmitFunc delivers one chunk to the client transport.
type EmitFunc func(Chunk) error

// Observer is notified with the cumulative text after every emitted chunk,
// typically to persist partial content. Observer failures never interrupt
// the stream.
type Observer func(fullContent string) error

// streamTokens forwards provider deltas as content chunks. It returns the
// cumulative text, the number of chunks emitted and the first error from the
// provider or the transport.
func streamTokens(ctx context.Context, messageID string, tokens <-chan string, errs <-chan error, emit EmitFunc, observer Observer) (string, int, error) {
	var full string
	emitted := 0
	for {
		select {
		case token, ok := <-tokens:
			if !ok {
				// Drain the error channel for a failure that raced the close.
				if err := <-errs; err != nil {
					return full, emitted, err
				}
				return full, emitted, nil
			}
			full += token
			if err := emit(Chunk{Type: ChunkContent, MessageID: messageID, Content: token, FullContent: full}); err != nil {
				return full, emitted, err
			}
			emitted++
			notifyObserver(observer, full)
		case <-ctx.Done():
			return full, emitted, ctx.Err()
		}
	}
}

// replayChunked emits a complete answer as fixed-size chunks with the same
// cumulative-text contract as true streaming.
func replayChunked(ctx context.Context, messageID, answer string, emit EmitFunc, observer Observer) error {
	runes := []rune(answer)
	var full string
	for start := 0; start < len(runes); start += replayChunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + replayChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		piece := string(runes[start:end])
		full += piece
		if err := emit(Chunk{Type: ChunkContent, MessageID: messageID, Content: piece, FullContent: full}); err != nil {
			return err
		}
		notifyObserver(observer, full)
	}
	return nil
}

// notifyObserver calls the observer and swallows any failure so persistence
// problems cannot abort a live stream.
func notifyObserver(observer Observer, full string) {
	if observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("stream observer panicked", "panic", r)
		}
	}()
	if err := observer(full); err != nil {
		slog.Warn("stream observer failed", "error", err)
	}
}
