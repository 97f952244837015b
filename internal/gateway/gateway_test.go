package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/boardroom/config"
)

func newTestGateway(t *testing.T, cfg config.LLMConfig) *Gateway {
	t.Helper()
	return New(cfg, nil)
}

func TestPickProviderAndModel(t *testing.T) {
	cases := []struct {
		name         string
		cfg          config.LLMConfig
		defaultModel string
		wantProvider Provider
		wantModel    string
	}{
		{
			name:         "explicit groq",
			cfg:          config.LLMConfig{Provider: "groq", Groq: config.BackendConfig{APIKey: "k"}},
			defaultModel: "llama-3.1-8b-instant",
			wantProvider: ProviderGroq,
			wantModel:    "llama-3.1-8b-instant",
		},
		{
			name:         "auto prefers groq",
			cfg:          config.LLMConfig{Provider: "auto", Groq: config.BackendConfig{APIKey: "k"}, DeepSeek: config.BackendConfig{APIKey: "d"}},
			defaultModel: "llama-3.3-70b-versatile",
			wantProvider: ProviderGroq,
			wantModel:    "llama-3.3-70b-versatile",
		},
		{
			name:         "auto falls to deepseek and coerces model",
			cfg:          config.LLMConfig{Provider: "auto", DeepSeek: config.BackendConfig{APIKey: "d"}},
			defaultModel: "llama-3.1-8b-instant",
			wantProvider: ProviderDeepSeek,
			wantModel:    DefaultDeepSeekModel,
		},
		{
			name:         "no credentials means mock",
			cfg:          config.LLMConfig{Provider: "auto"},
			defaultModel: "llama-3.1-8b-instant",
			wantProvider: ProviderMock,
			wantModel:    "llama-3.1-8b-instant",
		},
		{
			name:         "global model override wins",
			cfg:          config.LLMConfig{Provider: "groq", Model: "llama-3.3-70b-versatile", Groq: config.BackendConfig{APIKey: "k"}},
			defaultModel: "llama-3.1-8b-instant",
			wantProvider: ProviderGroq,
			wantModel:    "llama-3.3-70b-versatile",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			g := newTestGateway(t, c.cfg)
			provider, model := g.PickProviderAndModel(c.defaultModel, "MarketScout")
			if provider != c.wantProvider || model != c.wantModel {
				t.Fatalf("got (%s, %s), want (%s, %s)", provider, model, c.wantProvider, c.wantModel)
			}
		})
	}
}

func TestCoerceModel(t *testing.T) {
	if got := CoerceModel(ProviderDeepSeek, "llama-3.1-8b-instant"); got != DefaultDeepSeekModel {
		t.Fatalf("deepseek coercion = %q", got)
	}
	if got := CoerceModel(ProviderDeepSeek, "deepseek-coder-v2"); got != "deepseek-coder-v2" {
		t.Fatalf("deepseek passthrough = %q", got)
	}
	if got := CoerceModel(ProviderGroq, "deepseek-coder"); got != DefaultGroqModel {
		t.Fatalf("groq coercion = %q", got)
	}
	if got := CoerceModel(ProviderGroq, "llama-3.3-70b-versatile"); got != "llama-3.3-70b-versatile" {
		t.Fatalf("groq passthrough = %q", got)
	}
}

func TestOther(t *testing.T) {
	if Other(ProviderGroq) != ProviderDeepSeek || Other(ProviderDeepSeek) != ProviderGroq {
		t.Fatal("fallback pairing is wrong")
	}
}

func TestChatMockRepliesPerAgent(t *testing.T) {
	g := newTestGateway(t, config.LLMConfig{})
	got, err := g.Chat(context.Background(), ProviderMock, "llama-3.1-8b-instant", nil, 0.2, 4096, "Designer")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !strings.Contains(got, "Go button") {
		t.Fatalf("unexpected Designer reply: %q", got)
	}

	lead, err := g.Chat(context.Background(), ProviderMock, "llama-3.1-8b-instant", nil, 0.2, 4096, "LeadAgent")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !strings.Contains(lead, "<<JSON_START>>") || !strings.Contains(lead, "<<JSON_END>>") {
		t.Fatal("LeadAgent mock reply should carry plan sentinels")
	}

	unknown, err := g.Chat(context.Background(), ProviderMock, "llama-3.1-8b-instant", nil, 0.2, 4096, "Stranger")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if unknown != "Mock response" {
		t.Fatalf("unknown agent reply = %q", unknown)
	}
}

func TestChatHTTPBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hello from groq"}}]}`))
	}))
	defer srv.Close()

	g := newTestGateway(t, config.LLMConfig{
		Groq: config.BackendConfig{APIKey: "test-key", BaseURL: srv.URL},
	})
	got, err := g.Chat(context.Background(), ProviderGroq, "llama-3.1-8b-instant",
		[]Message{{Role: "user", Content: "hi"}}, 0.2, 64, "")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "hello from groq" {
		t.Fatalf("content = %q", got)
	}
}

func TestChatHTTPBackendAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	g := newTestGateway(t, config.LLMConfig{
		Groq: config.BackendConfig{APIKey: "bad", BaseURL: srv.URL},
	})
	_, err := g.Chat(context.Background(), ProviderGroq, "llama-3.1-8b-instant", nil, 0.2, 64, "")
	if err == nil {
		t.Fatal("expected auth error")
	}
	if !IsAuthError(err) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}

func TestChatNoCredential(t *testing.T) {
	g := newTestGateway(t, config.LLMConfig{})
	_, err := g.Chat(context.Background(), ProviderGroq, "llama-3.1-8b-instant", nil, 0.2, 64, "")
	if err == nil {
		t.Fatal("expected missing credential error")
	}
	if IsAuthError(err) {
		t.Fatal("missing credential must not classify as auth rejection")
	}
}
