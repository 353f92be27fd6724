package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/internal/profile"
	"github.com/parleychat/parley/plugin/ai"
	"github.com/parleychat/parley/server/broker"
	"github.com/parleychat/parley/server/service/chat"
	"github.com/parleychat/parley/store"
	"github.com/parleychat/parley/store/db/sqlite"
	"github.com/parleychat/parley/store/kv"
)

func newTestAPI(t *testing.T) (*echo.Echo, *store.Store) {
	t.Helper()

	p := &profile.Profile{Mode: "dev", Driver: "sqlite", DSN: "file::memory:", CatchupWindow: 50}
	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	st := store.New(driver, p)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	kvStore := kv.NewMemoryStore()
	t.Cleanup(func() { kvStore.Close() })
	tracker := chat.NewTracker(kvStore, st)
	catchup := chat.NewCatchup(tracker, st, p.CatchupWindow)
	b := broker.NewMemoryBroker()
	t.Cleanup(func() { b.Close() })
	chatService := chat.NewService(st, tracker, catchup, b)

	e := echo.New()
	NewAPIV1Service(p, st, chatService, nil).Register(e)
	return e, st
}

func doRequest(e *echo.Echo, method, path, userID, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRoomLifecycle(t *testing.T) {
	e, _ := newTestAPI(t)

	rec := doRequest(e, http.MethodPost, "/api/v1/rooms", "u1", `{"name":"general"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var room store.Room
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &room))
	assert.Equal(t, "general", room.Name)
	assert.Equal(t, "u1", room.CreatorID)

	// Duplicate names conflict.
	rec = doRequest(e, http.MethodPost, "/api/v1/rooms", "u2", `{"name":"general"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(e, http.MethodGet, "/api/v1/rooms", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	// Only the creator may delete.
	rec = doRequest(e, http.MethodDelete, "/api/v1/rooms/"+room.ID, "u2", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = doRequest(e, http.MethodDelete, "/api/v1/rooms/"+room.ID, "u1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSendMessageStatuses(t *testing.T) {
	e, _ := newTestAPI(t)

	rec := doRequest(e, http.MethodPost, "/api/v1/rooms", "u1", `{"name":"general"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var room store.Room
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &room))

	messagePath := "/api/v1/rooms/" + room.ID + "/messages"

	rec = doRequest(e, http.MethodPost, messagePath, "u1", `{"content":"hello","user":{"id":"u1","name":"alice"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var message store.ChatMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &message))
	assert.NotEmpty(t, message.ID)

	// Sending as another user is forbidden.
	rec = doRequest(e, http.MethodPost, messagePath, "u2", `{"content":"hello","user":{"id":"u1","name":"alice"}}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Unknown room is not found.
	rec = doRequest(e, http.MethodPost, "/api/v1/rooms/nope/messages", "u1", `{"content":"hi","user":{"id":"u1","name":"alice"}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Missing content is a bad request.
	rec = doRequest(e, http.MethodPost, messagePath, "u1", `{"user":{"id":"u1","name":"alice"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unsend by a different user is forbidden; by the owner it works.
	rec = doRequest(e, http.MethodDelete, "/api/v1/messages/"+message.ID, "u2", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = doRequest(e, http.MethodDelete, "/api/v1/messages/"+message.ID, "u1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// The deleted message is gone from the room listing.
	rec = doRequest(e, http.MethodGet, messagePath, "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []*store.ChatMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Empty(t, listed)
}

func TestReceiptAndCatchup(t *testing.T) {
	e, _ := newTestAPI(t)

	rec := doRequest(e, http.MethodPost, "/api/v1/rooms", "u1", `{"name":"general"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var room store.Room
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &room))

	messagePath := "/api/v1/rooms/" + room.ID + "/messages"
	var first store.ChatMessage
	rec = doRequest(e, http.MethodPost, messagePath, "u1", `{"clientMsgId":"m1","content":"one","user":{"id":"u1","name":"alice"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	rec = doRequest(e, http.MethodPost, messagePath, "u1", `{"clientMsgId":"m2","content":"two","user":{"id":"u1","name":"alice"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// Receipts are self-only.
	receiptPath := "/api/v1/rooms/" + room.ID + "/receipts"
	rec = doRequest(e, http.MethodPost, receiptPath, "u2", `{"userId":"u1","messageId":"m1"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = doRequest(e, http.MethodPost, receiptPath, "u2", `{"userId":"u2","messageId":"`+first.ID+`"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(e, http.MethodGet, "/api/v1/rooms/"+room.ID+"/catchup?userId=u2", "u2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var missed []*store.ChatMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &missed))
	require.Len(t, missed, 1)
	assert.Equal(t, "m2", missed[0].ID)
}

func TestStatsEndpoint(t *testing.T) {
	e, _ := newTestAPI(t)

	rec := doRequest(e, http.MethodPost, "/api/v1/rooms", "u1", `{"name":"general"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var room store.Room
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &room))
	rec = doRequest(e, http.MethodPost, "/api/v1/rooms/"+room.ID+"/messages", "u1", `{"content":"hello","user":{"id":"u1","name":"alice"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(e, http.MethodGet, "/api/v1/stats", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.EqualValues(t, 1, payload["totalRooms"])
	assert.EqualValues(t, 1, payload["totalMessages"])
}

func TestAssistantDisabled(t *testing.T) {
	e, _ := newTestAPI(t)

	rec := doRequest(e, http.MethodPost, "/api/v1/rooms/any/assistant", "u1", `{"text":"hello"}`)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

// scriptedCompleter streams a fixed token sequence.
type scriptedCompleter struct {
	tokens []string
}

func (f *scriptedCompleter) Chat(_ context.Context, _ string, _ []ai.Message) (string, error) {
	return strings.Join(f.tokens, ""), nil
}

func (f *scriptedCompleter) ChatStream(_ context.Context, _ string, _ []ai.Message) (<-chan string, <-chan error) {
	tokens := make(chan string, len(f.tokens))
	errs := make(chan error, 1)
	for _, token := range f.tokens {
		tokens <- token
	}
	close(tokens)
	close(errs)
	return tokens, errs
}

func newTestAPIWithAssistant(t *testing.T, tokens ...string) (*echo.Echo, *store.Store, *broker.MemoryBroker) {
	t.Helper()

	p := &profile.Profile{Mode: "dev", Driver: "sqlite", DSN: "file::memory:", CatchupWindow: 50}
	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	st := store.New(driver, p)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	kvStore := kv.NewMemoryStore()
	t.Cleanup(func() { kvStore.Close() })
	tracker := chat.NewTracker(kvStore, st)
	catchup := chat.NewCatchup(tracker, st, p.CatchupWindow)
	b := broker.NewMemoryBroker()
	t.Cleanup(func() { b.Close() })
	chatService := chat.NewService(st, tracker, catchup, b)

	cfg := &ai.Config{Mode: ai.ModeSDK, Model: "test-model", CodeModel: "test-model"}
	orchestrator := ai.NewOrchestrator(cfg, &scriptedCompleter{tokens: tokens}, nil, nil)

	e := echo.New()
	NewAPIV1Service(p, st, chatService, orchestrator).Register(e)
	return e, st, b
}

func decodeSSEChunks(t *testing.T, body string) []ai.Chunk {
	t.Helper()
	var chunks []ai.Chunk
	for _, line := range strings.Split(body, "\n") {
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var chunk ai.Chunk
		require.NoError(t, json.Unmarshal([]byte(payload), &chunk))
		chunks = append(chunks, chunk)
	}
	return chunks
}

func TestAssistantStreamSharesIDWithStoredMessage(t *testing.T) {
	e, st, b := newTestAPIWithAssistant(t, "Hello", " world")

	rec := doRequest(e, http.MethodPost, "/api/v1/rooms", "u1", `{"name":"general"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var room store.Room
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &room))

	rec = doRequest(e, http.MethodPost, "/api/v1/rooms/"+room.ID+"/messages", "u1",
		`{"content":"hi there","user":{"id":"u1","name":"alice"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var trigger store.ChatMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trigger))

	events, cancel, err := b.Subscribe(context.Background(), room.ID)
	require.NoError(t, err)
	defer cancel()

	rec = doRequest(e, http.MethodPost, "/api/v1/rooms/"+room.ID+"/assistant", "u1",
		`{"messageId":"`+trigger.ID+`","text":"say hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	chunks := decodeSSEChunks(t, rec.Body.String())
	require.Len(t, chunks, 2)

	// Every chunk carries the answer's own message id, not the trigger's.
	answerID := chunks[0].MessageID
	require.NotEmpty(t, answerID)
	assert.NotEqual(t, trigger.ID, answerID)
	for _, chunk := range chunks {
		assert.Equal(t, ai.ChunkContent, chunk.Type)
		assert.Equal(t, answerID, chunk.MessageID)
	}
	assert.Equal(t, "Hello world", chunks[len(chunks)-1].FullContent)

	// The persisted row shares the stream's id and holds the full answer.
	stored, err := st.GetChatMessage(context.Background(), &store.FindChatMessage{ID: &answerID})
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Hello world", stored.Content)
	assert.Equal(t, "assistant", stored.User.ID)

	// The last broadcast for the answer id carries the finalized text.
	var finalContent string
	for len(events) > 0 {
		var event chat.Event
		require.NoError(t, json.Unmarshal(<-events, &event))
		if event.Type == chat.EventMessage && event.Message != nil && event.Message.ID == answerID {
			finalContent = event.Message.Content
		}
	}
	assert.Equal(t, "Hello world", finalContent)
}
