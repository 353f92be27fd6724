package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pkg/errors"

	"github.com/parleychat/parley/plugin/ai/websearch"
)

const defaultSystemPrompt = "You are a helpful assistant in a group chat. Answer concisely."

// completer is the outbound completion surface, satisfied by *Provider.
type completer interface {
	Chat(ctx context.Context, model string, messages []Message) (string, error)
	ChatStream(ctx context.Context, model string, messages []Message) (<-chan string, <-chan error)
}

// searcher is the outbound search surface, satisfied by *websearch.Client.
type searcher interface {
	Search(ctx context.Context, query string) ([]websearch.Result, error)
}

// TurnRequest describes one assistant turn. MessageID identifies the answer
// message itself; every emitted chunk is stamped with it so the in-flight
// stream and the persisted copy reconcile as one message. UserText plus the
// optional prompt override and reply-target context feed model selection.
type TurnRequest struct {
	MessageID    string
	UserText     string
	SystemPrompt string
	ReplyTarget  string
}

// Orchestrator runs assistant turns: it picks the backend mode and model,
// decides on a web search and streams the answer back as chunks.
type Orchestrator struct {
	config   *Config
	llm      completer
	search   searcher
	cooldown *websearch.Cooldown
}

// NewOrchestrator creates an orchestrator. search may be nil when no search
// provider is configured.
func NewOrchestrator(cfg *Config, llm completer, search *websearch.Client, cooldown *websearch.Cooldown) *Orchestrator {
	var s searcher
	if search != nil {
		s = search
	}
	if cooldown == nil {
		cooldown = websearch.NewCooldown(nil)
	}
	return &Orchestrator{config: cfg, llm: llm, search: s, cooldown: cooldown}
}

// Respond runs one turn and emits the answer as chunks. A failure before any
// chunk reached the client is retried once with safe defaults (plain
// streaming on the default model); a failure after that emits an error chunk
// so the client's stream never hangs open.
func (o *Orchestrator) Respond(ctx context.Context, req *TurnRequest, emit EmitFunc, observer Observer) error {
	mode := o.config.Mode
	model := SelectModel(o.config, req.UserText, req.SystemPrompt, req.ReplyTarget)

	emitted, err := o.runTurn(ctx, mode, model, req, emit, observer)
	if err == nil {
		return nil
	}

	if emitted == 0 && (mode != ModeSDK || model != o.config.Model) {
		slog.Warn("assistant turn failed, retrying with safe defaults",
			"mode", mode, "model", model, "error", err)
		emitted, err = o.runTurn(ctx, ModeSDK, o.config.Model, req, emit, observer)
		if err == nil {
			return nil
		}
	}

	if emitErr := emit(Chunk{Type: ChunkError, MessageID: req.MessageID, Content: err.Error()}); emitErr != nil {
		slog.Warn("failed to deliver stream error event", "error", emitErr)
	}
	return errors.Wrap(err, "assistant turn failed")
}

// runTurn executes one attempt and reports how many content chunks reached
// the client, which decides whether a failure is still retryable.
func (o *Orchestrator) runTurn(ctx context.Context, mode BackendMode, model string, req *TurnRequest, emit EmitFunc, observer Observer) (int, error) {
	var results []websearch.Result
	if mode == ModeTool {
		results = o.maybeSearch(ctx, req.UserText)
	}

	messages := buildMessages(req, results)

	if mode == ModeTool {
		answer, err := o.llm.Chat(ctx, model, messages)
		if err != nil {
			return 0, err
		}
		answer = websearch.AppendSources(answer, results)
		if err := replayChunked(ctx, req.MessageID, answer, emit, observer); err != nil {
			// The answer exists, so a transport error here is terminal.
			return 1, err
		}
		return 1, nil
	}

	if mode == ModeNative && websearch.ShouldSearch(req.UserText) {
		// Search-capable model variant; the provider searches on its side.
		model = o.config.SearchModel
	}

	tokens, errs := o.llm.ChatStream(ctx, model, messages)
	_, emitted, err := streamTokens(ctx, req.MessageID, tokens, errs, emit, observer)
	return emitted, err
}

// maybeSearch runs the search step when the message calls for it. All search
// failures degrade to answering without results; a quota error additionally
// trips the cooldown so the next turns skip the attempt entirely.
func (o *Orchestrator) maybeSearch(ctx context.Context, text string) []websearch.Result {
	if o.search == nil || !websearch.ShouldSearch(text) {
		return nil
	}
	if o.cooldown.Active() {
		slog.Debug("search cooldown active, skipping search")
		return nil
	}
	results, err := o.search.Search(ctx, text)
	if err != nil {
		if errors.Is(err, websearch.ErrQuotaExceeded) {
			cooldown := o.config.SearchCooldown
			if cooldown <= 0 {
				cooldown = websearch.DefaultCooldown
			}
			o.cooldown.Trip(cooldown)
			slog.Warn("search quota exhausted, disabling search", "cooldown", cooldown)
		} else {
			slog.Warn("search failed, answering without results", "error", err)
		}
		return nil
	}
	return results
}

func buildMessages(req *TurnRequest, results []websearch.Result) []Message {
	system := req.SystemPrompt
	if system == "" {
		system = defaultSystemPrompt
	}
	messages := []Message{SystemPrompt(system)}

	if len(results) > 0 {
		var b strings.Builder
		b.WriteString("Web search results for the user's question:\n")
		for i, r := range results {
			fmt.Fprintf(&b, "%d. %s (%s)\n%s\n", i+1, r.Title, r.URL, r.Content)
		}
		b.WriteString("Use these results where relevant.")
		messages = append(messages, SystemPrompt(b.String()))
	}

	if req.ReplyTarget != "" {
		messages = append(messages, SystemPrompt("The user is replying to this message:\n"+req.ReplyTarget))
	}

	return append(messages, UserMessage(req.UserText))
}
