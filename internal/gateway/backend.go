package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mohammad-safakhou/boardroom/config"
)

// ErrNoCredential indicates a backend was selected without an API key.
var ErrNoCredential = errors.New("api key not configured")

// AuthError is returned when a backend rejects the configured credential.
type AuthError struct {
	Provider Provider
	Status   int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s rejected credentials (status %d)", e.Provider, e.Status)
}

// IsAuthError reports whether err is an authentication-class failure.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// httpBackend talks to an OpenAI-compatible chat completions endpoint.
type httpBackend struct {
	name    Provider
	cfg     config.BackendConfig
	client  *http.Client
	baseURL string
}

func newHTTPBackend(name Provider, cfg config.BackendConfig, timeout time.Duration) *httpBackend {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		switch name {
		case ProviderGroq:
			baseURL = "https://api.groq.com/openai/v1"
		case ProviderDeepSeek:
			baseURL = "https://api.deepseek.com/v1"
		}
	}
	return &httpBackend{
		name:    name,
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

func (b *httpBackend) Name() Provider { return b.name }

// ChatCompletion issues one POST /chat/completions call.
func (b *httpBackend) ChatCompletion(ctx context.Context, req ChatRequest) (Completion, error) {
	if b.cfg.APIKey == "" {
		return Completion{}, fmt.Errorf("%s: %w", b.name, ErrNoCredential)
	}

	type chatReq struct {
		Model       string    `json:"model"`
		Messages    []Message `json:"messages"`
		Temperature float64   `json:"temperature,omitempty"`
		MaxTokens   int       `json:"max_tokens,omitempty"`
	}
	body, err := json.Marshal(chatReq{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return Completion{}, fmt.Errorf("marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return Completion{}, fmt.Errorf("request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return Completion{}, fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		io.Copy(io.Discard, resp.Body)
		return Completion{}, &AuthError{Provider: b.name, Status: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Completion{}, fmt.Errorf("%s status %d: %s", b.name, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Completion{}, fmt.Errorf("decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return Completion{}, fmt.Errorf("%s: no choices", b.name)
	}
	return Completion{
		Content:          out.Choices[0].Message.Content,
		PromptTokens:     out.Usage.PromptTokens,
		CompletionTokens: out.Usage.CompletionTokens,
	}, nil
}
