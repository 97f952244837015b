// Package gateway resolves which chat-completion backend to use for a given
// agent and issues single completion requests against it. Two real backends
// are supported (Groq and DeepSeek, both OpenAI-compatible HTTP APIs) plus a
// deterministic mock keyed by agent name so the whole pipeline stays runnable
// without any credential.
package gateway

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/boardroom/config"
	"github.com/mohammad-safakhou/boardroom/internal/telemetry"
)

// Provider identifies a chat backend.
type Provider string

const (
	ProviderGroq     Provider = "groq"
	ProviderDeepSeek Provider = "deepseek"
	ProviderMock     Provider = "mock"
)

// Canonical default models per backend.
const (
	DefaultGroqModel     = "llama-3.1-8b-instant"
	DefaultDeepSeekModel = "deepseek-coder"
)

// Message is one chat turn sent to a backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest carries everything a backend needs for one completion call.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Completion is the answer to one chat request, with token usage when the
// backend reports it.
type Completion struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// Backend issues a single chat completion request.
type Backend interface {
	Name() Provider
	ChatCompletion(ctx context.Context, req ChatRequest) (Completion, error)
}

// Gateway owns the configured backends and the resolution policy.
type Gateway struct {
	cfg       config.LLMConfig
	backends  map[Provider]Backend
	mock      *MockBackend
	logger    *log.Logger
	telemetry *telemetry.Telemetry
}

// Option configures the Gateway.
type Option func(*Gateway)

// WithTelemetry attaches a telemetry recorder to the gateway.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(g *Gateway) { g.telemetry = t }
}

// WithBackend overrides a backend implementation (used by tests).
func WithBackend(b Backend) Option {
	return func(g *Gateway) { g.backends[b.Name()] = b }
}

// New creates a gateway from config. Backends are constructed eagerly but
// make no network calls until Chat is invoked.
func New(cfg config.LLMConfig, logger *log.Logger, opts ...Option) *Gateway {
	if logger == nil {
		logger = log.New(log.Writer(), "[GATEWAY] ", log.LstdFlags)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	g := &Gateway{
		cfg:    cfg,
		logger: logger,
		mock:   NewMockBackend(),
		backends: map[Provider]Backend{
			ProviderGroq:     newHTTPBackend(ProviderGroq, cfg.Groq, timeout),
			ProviderDeepSeek: newHTTPBackend(ProviderDeepSeek, cfg.DeepSeek, timeout),
		},
	}
	g.backends[ProviderMock] = g.mock
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Mock exposes the mock backend so callers can register canned replies.
func (g *Gateway) Mock() *MockBackend { return g.mock }

// HasCredential reports whether a real backend has an API key configured.
func (g *Gateway) HasCredential(p Provider) bool {
	switch p {
	case ProviderGroq:
		return g.cfg.Groq.APIKey != ""
	case ProviderDeepSeek:
		return g.cfg.DeepSeek.APIKey != ""
	case ProviderMock:
		return true
	}
	return false
}

// PickProviderAndModel resolves the provider and model for one agent turn.
// Provider precedence: explicit config, then auto (groq if credentialed,
// then deepseek, then mock). Model precedence: global override, then the
// agent's default, coerced to the backend's naming convention.
func (g *Gateway) PickProviderAndModel(defaultModel, agentName string) (Provider, string) {
	provider := ProviderMock
	switch Provider(strings.ToLower(strings.TrimSpace(g.cfg.Provider))) {
	case ProviderGroq:
		provider = ProviderGroq
	case ProviderDeepSeek:
		provider = ProviderDeepSeek
	case ProviderMock:
		provider = ProviderMock
	default:
		if g.HasCredential(ProviderGroq) {
			provider = ProviderGroq
		} else if g.HasCredential(ProviderDeepSeek) {
			provider = ProviderDeepSeek
		}
	}

	model := g.cfg.Model
	if model == "" {
		model = defaultModel
	}
	switch provider {
	case ProviderDeepSeek:
		model = CoerceModel(ProviderDeepSeek, model)
	default:
		if model == "" {
			model = DefaultGroqModel
		}
	}
	return provider, model
}

// CoerceModel rewrites a model name to fit a backend's naming convention.
// DeepSeek only accepts deepseek-prefixed names; Groq rejects them.
func CoerceModel(p Provider, model string) string {
	switch p {
	case ProviderDeepSeek:
		if !strings.HasPrefix(strings.ToLower(model), "deepseek") {
			return DefaultDeepSeekModel
		}
	case ProviderGroq:
		if strings.HasPrefix(strings.ToLower(model), "deepseek") {
			return DefaultGroqModel
		}
		if model == "" {
			return DefaultGroqModel
		}
	}
	return model
}

// Other returns the alternate real backend, used for one-shot fallback.
func Other(p Provider) Provider {
	if p == ProviderGroq {
		return ProviderDeepSeek
	}
	return ProviderGroq
}

// Chat performs exactly one completion call against the given provider. It
// does not retry; fallback across backends is the caller's responsibility.
func (g *Gateway) Chat(ctx context.Context, provider Provider, model string, messages []Message, temperature float64, maxTokens int, agentName string) (string, error) {
	backend, ok := g.backends[provider]
	if !ok {
		return "", fmt.Errorf("unsupported provider: %s", provider)
	}
	if provider == ProviderMock {
		return g.mock.Reply(agentName), nil
	}

	start := time.Now()
	res, err := backend.ChatCompletion(ctx, ChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	g.telemetry.RecordGateway(telemetry.GatewayEvent{
		Provider:         string(provider),
		Model:            model,
		Duration:         time.Since(start),
		Success:          err == nil,
		PromptTokens:     res.PromptTokens,
		CompletionTokens: res.CompletionTokens,
	})
	if err != nil {
		return "", err
	}
	return res.Content, nil
}
