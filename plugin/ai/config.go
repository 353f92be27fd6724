package ai

import (
	"log/slog"
	"time"

	"github.com/parleychat/parley/internal/profile"
	"github.com/parleychat/parley/plugin/ai/websearch"
)

// BackendMode selects how an assistant turn produces its answer.
type BackendMode string

const (
	// ModeTool runs an explicit web-search call first, then a plain
	// completion over the results, replayed to the client in fixed chunks.
	ModeTool BackendMode = "tool"
	// ModeNative delegates search to the provider's search-capable model
	// and streams the completion directly.
	ModeNative BackendMode = "native"
	// ModeSDK is a plain streaming completion with no search. It is the
	// safe default every invalid configuration degrades to.
	ModeSDK BackendMode = "sdk"
)

// Config holds the assistant configuration resolved from the profile.
type Config struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Mode        BackendMode
	Model       string
	CodeModel   string
	SearchModel string
	MaxRetries  int
	Timeout     time.Duration

	// SearchCooldown is how long search stays disabled after a quota error.
	SearchCooldown time.Duration
}

// NewConfig builds the assistant configuration from the server profile,
// filling hardcoded fallbacks for anything unset.
func NewConfig(p *profile.Profile) *Config {
	cfg := &Config{
		Provider:    p.AIProvider,
		APIKey:      p.AIAPIKey,
		BaseURL:     p.AIBaseURL,
		Mode:        ResolveBackendMode(p.AIBackendMode, p.SearchAPIKey != ""),
		Model:       p.AIModel,
		CodeModel:   p.AICodeModel,
		SearchModel: "gpt-4o-search-preview",
		MaxRetries:  3,
		Timeout:     30 * time.Second,

		SearchCooldown: p.SearchCooldown,
	}
	if cfg.SearchCooldown <= 0 {
		cfg.SearchCooldown = websearch.DefaultCooldown
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.CodeModel == "" {
		cfg.CodeModel = "gpt-4o"
	}
	return cfg
}

// ResolveBackendMode parses the configured mode string. Unknown modes and
// modes whose dependencies are missing degrade to ModeSDK so a bad
// configuration can never fail a request.
func ResolveBackendMode(raw string, searchAvailable bool) BackendMode {
	switch BackendMode(raw) {
	case ModeTool:
		if !searchAvailable {
			slog.Warn("search backend configured without a search API key, falling back", "mode", raw)
			return ModeSDK
		}
		return ModeTool
	case ModeNative:
		return ModeNative
	case ModeSDK, "":
		return ModeSDK
	default:
		slog.Warn("unknown assistant backend mode, falling back", "mode", raw)
		return ModeSDK
	}
}
