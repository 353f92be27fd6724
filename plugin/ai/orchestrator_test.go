package ai

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/plugin/ai/websearch"
)

type fakeCompleter struct {
	chatAnswer  string
	chatErr     error
	chatCalls   int
	chatModels  []string
	streamToks  []string
	streamErr   error
	streamCalls int
}

func (f *fakeCompleter) Chat(_ context.Context, model string, _ []Message) (string, error) {
	f.chatCalls++
	f.chatModels = append(f.chatModels, model)
	return f.chatAnswer, f.chatErr
}

func (f *fakeCompleter) ChatStream(_ context.Context, model string, _ []Message) (<-chan string, <-chan error) {
	f.streamCalls++
	f.chatModels = append(f.chatModels, model)
	tokens := make(chan string, len(f.streamToks)+1)
	errs := make(chan error, 1)
	for _, tok := range f.streamToks {
		tokens <- tok
	}
	if f.streamErr != nil {
		errs <- f.streamErr
	}
	close(tokens)
	close(errs)
	return tokens, errs
}

type fakeSearcher struct {
	results []websearch.Result
	err     error
	calls   int
}

func (f *fakeSearcher) Search(context.Context, string) ([]websearch.Result, error) {
	f.calls++
	return f.results, f.err
}

func newTestOrchestrator(mode BackendMode, llm completer, search searcher) (*Orchestrator, *websearch.Cooldown) {
	cfg := testConfig()
	cfg.Mode = mode
	cfg.SearchModel = "search-model"
	cooldown := websearch.NewCooldown(nil)
	o := &Orchestrator{config: cfg, llm: llm, search: search, cooldown: cooldown}
	return o, cooldown
}

func TestRespondStreamsTokens(t *testing.T) {
	llm := &fakeCompleter{streamToks: []string{"hi ", "there"}}
	o, _ := newTestOrchestrator(ModeSDK, llm, nil)

	var chunks []Chunk
	err := o.Respond(context.Background(), &TurnRequest{MessageID: "m1", UserText: "hello"}, collectChunks(&chunks), nil)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "hi there", chunks[1].FullContent)
	assert.Equal(t, []string{"default-model"}, llm.chatModels)
}

func TestRespondToolModeCitesSources(t *testing.T) {
	llm := &fakeCompleter{chatAnswer: "It is sunny."}
	search := &fakeSearcher{results: []websearch.Result{
		{Title: "Forecast", URL: "https://weather.example/today"},
	}}
	o, _ := newTestOrchestrator(ModeTool, llm, search)

	var chunks []Chunk
	err := o.Respond(context.Background(), &TurnRequest{MessageID: "m1", UserText: "what's the weather today"}, collectChunks(&chunks), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, search.calls)
	assert.Equal(t, 1, llm.chatCalls)
	require.NotEmpty(t, chunks)
	assert.Contains(t, chunks[len(chunks)-1].FullContent, "Sources: https://weather.example/today")
}

func TestRespondQuotaErrorTripsCooldown(t *testing.T) {
	llm := &fakeCompleter{chatAnswer: "answer"}
	search := &fakeSearcher{err: websearch.ErrQuotaExceeded}
	o, cooldown := newTestOrchestrator(ModeTool, llm, search)

	var chunks []Chunk
	req := &TurnRequest{MessageID: "m1", UserText: "what's the weather today"}
	require.NoError(t, o.Respond(context.Background(), req, collectChunks(&chunks), nil))
	assert.Equal(t, 1, search.calls)
	assert.True(t, cooldown.Active())

	// The next turn skips the search attempt entirely.
	require.NoError(t, o.Respond(context.Background(), req, collectChunks(&chunks), nil))
	assert.Equal(t, 1, search.calls)
	assert.Equal(t, 2, llm.chatCalls, "answers still produced without search")
}

func TestRespondRetriesWithSafeDefaults(t *testing.T) {
	llm := &fakeCompleter{chatErr: errors.New("tool backend down"), streamToks: []string{"fallback"}}
	o, _ := newTestOrchestrator(ModeTool, llm, &fakeSearcher{})

	var chunks []Chunk
	err := o.Respond(context.Background(), &TurnRequest{MessageID: "m1", UserText: "hello"}, collectChunks(&chunks), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, llm.chatCalls)
	assert.Equal(t, 1, llm.streamCalls, "second attempt uses plain streaming")
	require.Len(t, chunks, 1)
	assert.Equal(t, "fallback", chunks[0].Content)
}

func TestRespondMidStreamFailureEmitsErrorChunk(t *testing.T) {
	llm := &fakeCompleter{streamToks: []string{"partial "}, streamErr: errors.New("upstream closed")}
	o, _ := newTestOrchestrator(ModeSDK, llm, nil)

	var chunks []Chunk
	err := o.Respond(context.Background(), &TurnRequest{MessageID: "m1", UserText: "write a poem"}, collectChunks(&chunks), nil)
	require.Error(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, ChunkContent, chunks[0].Type)
	assert.Equal(t, ChunkError, chunks[1].Type)
	assert.Equal(t, "upstream closed", chunks[1].Content)
	assert.Equal(t, 1, llm.streamCalls, "no retry once content reached the client")
}

func TestRespondNativeModeUsesSearchModel(t *testing.T) {
	llm := &fakeCompleter{streamToks: []string{"sunny"}}
	o, _ := newTestOrchestrator(ModeNative, llm, nil)

	var chunks []Chunk
	err := o.Respond(context.Background(), &TurnRequest{MessageID: "m1", UserText: "what's the weather today"}, collectChunks(&chunks), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"search-model"}, llm.chatModels)

	llm.chatModels = nil
	err = o.Respond(context.Background(), &TurnRequest{MessageID: "m2", UserText: "tell me a joke"}, collectChunks(&chunks), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"default-model"}, llm.chatModels)
}

func TestResolveBackendMode(t *testing.T) {
	assert.Equal(t, ModeTool, ResolveBackendMode("tool", true))
	assert.Equal(t, ModeSDK, ResolveBackendMode("tool", false), "tool without a search key degrades")
	assert.Equal(t, ModeNative, ResolveBackendMode("native", false))
	assert.Equal(t, ModeSDK, ResolveBackendMode("", false))
	assert.Equal(t, ModeSDK, ResolveBackendMode("warp-drive", true), "unknown modes fail open")
}

// stalledCompleter returns a stream that never produces a token, so only
// context cancellation can end the turn.
type stalledCompleter struct{}

func (stalledCompleter) Chat(context.Context, string, []Message) (string, error) {
	return "", nil
}

func (stalledCompleter) ChatStream(context.Context, string, []Message) (<-chan string, <-chan error) {
	return make(chan string), make(chan error, 1)
}

func TestRespondCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	o, _ := newTestOrchestrator(ModeSDK, stalledCompleter{}, nil)

	var chunks []Chunk
	err := o.Respond(ctx, &TurnRequest{MessageID: "m1", UserText: "hello"}, collectChunks(&chunks), nil)
	require.ErrorIs(t, err, context.Canceled)
	// The canceled turn still closes with a terminal error event.
	require.NotEmpty(t, chunks)
	assert.Equal(t, ChunkError, chunks[len(chunks)-1].Type)
}
