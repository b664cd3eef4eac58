// Package provider wraps LLM backend streaming APIs behind one uniform
// contract. Call sites never branch on which backend is active once a
// client has been constructed; the factory selects the implementation
// exactly once per request.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"codeloom/internal/config"
	"codeloom/internal/types"
)

// Configuration errors are detected before any streaming starts so the
// caller can render an error stream without having opened a transport.
var (
	ErrMissingAPIKey = errors.New("API key not configured")
	ErrUnknownModel  = errors.New("unknown model selector")
)

// Message is one prior conversation entry sent to a backend.
type Message struct {
	Role    string
	Content string
}

// Request carries everything a backend needs for one streaming call.
type Request struct {
	System  string
	History []Message
	Prompt  string
}

// StreamClient is the uniform provider contract. Stream returns a channel
// of incremental events and a channel carrying at most one error. Both
// channels are closed when the call ends. A continuation is performed by
// calling Stream again with History extended by the partial output so far.
type StreamClient interface {
	Stream(ctx context.Context, req Request) (<-chan types.StreamEvent, <-chan error)
	Model() string
}

// Factory resolves a model selector from a chat request to a concrete
// client, validating credentials up front.
type Factory struct {
	cfg config.LLMConfig
}

// NewFactory creates a factory over the configured providers.
func NewFactory(cfg config.LLMConfig) *Factory {
	return &Factory{cfg: cfg}
}

// ClientFor maps a model selector to a client. Selectors are matched by
// prefix so both shorthand ("claude") and full model ids
// ("claude-sonnet-4-20250514", "gemini-2.0-flash") resolve. An empty
// selector uses the configured default.
func (f *Factory) ClientFor(selector string) (StreamClient, error) {
	if selector == "" {
		selector = f.cfg.DefaultModel
	}
	s := strings.ToLower(strings.TrimSpace(selector))

	switch {
	case strings.HasPrefix(s, "claude") || s == "anthropic":
		if f.cfg.Anthropic.APIKey == "" {
			return nil, fmt.Errorf("anthropic: %w", ErrMissingAPIKey)
		}
		c := NewAnthropicClient(f.cfg.Anthropic.APIKey)
		if f.cfg.Anthropic.BaseURL != "" {
			c.baseURL = f.cfg.Anthropic.BaseURL
		}
		if f.cfg.Anthropic.Model != "" {
			c.SetModel(f.cfg.Anthropic.Model)
		} else if strings.HasPrefix(s, "claude-") {
			c.SetModel(s)
		}
		return c, nil

	case strings.HasPrefix(s, "gemini") || s == "google":
		if f.cfg.Gemini.APIKey == "" {
			return nil, fmt.Errorf("gemini: %w", ErrMissingAPIKey)
		}
		c := NewGeminiClient(f.cfg.Gemini.APIKey)
		if f.cfg.Gemini.BaseURL != "" {
			c.baseURL = f.cfg.Gemini.BaseURL
		}
		if f.cfg.Gemini.Model != "" {
			c.SetModel(f.cfg.Gemini.Model)
		} else if strings.HasPrefix(s, "gemini-") {
			c.SetModel(s)
		}
		return c, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, selector)
	}
}
