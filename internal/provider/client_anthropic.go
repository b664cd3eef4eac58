package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"codeloom/internal/logging"
	"codeloom/internal/types"
)

// AnthropicClient implements StreamClient for the Anthropic Messages API.
type AnthropicClient struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	httpClient  *http.Client
	mu          sync.Mutex
	lastRequest time.Time
}

// AnthropicConfig holds configuration for the Anthropic client.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// DefaultAnthropicConfig returns sensible defaults.
func DefaultAnthropicConfig(apiKey string) AnthropicConfig {
	return AnthropicConfig{
		APIKey:    apiKey,
		BaseURL:   "https://api.anthropic.com/v1",
		Model:     "claude-sonnet-4-20250514",
		MaxTokens: 8192,
		Timeout:   10 * time.Minute,
	}
}

// NewAnthropicClient creates a new Anthropic client with default config.
func NewAnthropicClient(apiKey string) *AnthropicClient {
	return NewAnthropicClientWithConfig(DefaultAnthropicConfig(apiKey))
}

// NewAnthropicClientWithConfig creates a new Anthropic client with custom config.
func NewAnthropicClientWithConfig(cfg AnthropicConfig) *AnthropicClient {
	return &AnthropicClient{
		apiKey:    cfg.APIKey,
		baseURL:   cfg.BaseURL,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// SetModel changes the model used for completions.
func (c *AnthropicClient) SetModel(model string) { c.model = model }

// Model returns the current model.
func (c *AnthropicClient) Model() string { return c.model }

// anthropicRequest represents the Messages API request.
type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Stream    bool               `json:"stream"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicStreamEvent is the subset of SSE event payloads the adapter
// cares about: text deltas, the stop reason, and errors.
type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta *struct {
		Type       string `json:"type"`
		Text       string `json:"text,omitempty"`
		StopReason string `json:"stop_reason,omitempty"`
	} `json:"delta,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Stream sends the request with streaming enabled and returns channels of
// incremental events. The error channel carries at most one error; both
// channels are closed when the call ends.
func (c *AnthropicClient) Stream(ctx context.Context, req Request) (<-chan types.StreamEvent, <-chan error) {
	eventChan := make(chan types.StreamEvent, 100)
	errorChan := make(chan error, 1)

	logging.APIDebug("[Anthropic] Stream: starting model=%s history=%d", c.model, len(req.History))

	go func() {
		defer close(eventChan)
		defer close(errorChan)

		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
			defer cancel()
		}

		startTime := time.Now()

		if c.apiKey == "" {
			logging.APIError("[Anthropic] Stream: API key not configured")
			errorChan <- ErrMissingAPIKey
			return
		}

		// Rate limiting
		c.mu.Lock()
		elapsed := time.Since(c.lastRequest)
		if elapsed < 100*time.Millisecond {
			time.Sleep(100*time.Millisecond - elapsed)
		}
		c.lastRequest = time.Now()
		c.mu.Unlock()

		messages := make([]anthropicMessage, 0, len(req.History)+1)
		for _, m := range req.History {
			messages = append(messages, anthropicMessage{Role: m.Role, Content: m.Content})
		}
		messages = append(messages, anthropicMessage{Role: "user", Content: req.Prompt})

		reqBody := anthropicRequest{
			Model:     c.model,
			MaxTokens: c.maxTokens,
			System:    req.System,
			Messages:  messages,
			Stream:    true,
		}

		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			errorChan <- fmt.Errorf("failed to marshal request: %w", err)
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/messages", bytes.NewReader(jsonData))
		if err != nil {
			errorChan <- fmt.Errorf("failed to create request: %w", err)
			return
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", c.apiKey)
		httpReq.Header.Set("anthropic-version", "2023-06-01")
		httpReq.Header.Set("Accept", "text/event-stream")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			errorChan <- fmt.Errorf("request failed: %w", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			errorChan <- fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		scanDone := make(chan struct{})
		scanErrChan := make(chan error, 1)

		go func() {
			defer close(scanDone)
			finish := types.FinishNormal
			for scanner.Scan() {
				line := scanner.Text()
				if !strings.HasPrefix(line, "data:") {
					continue
				}
				data := trimDataPrefix(line)
				if data == "" {
					continue
				}
				if data == "[DONE]" {
					break
				}

				var evt anthropicStreamEvent
				if err := json.Unmarshal([]byte(data), &evt); err != nil {
					continue
				}
				if evt.Error != nil {
					scanErrChan <- fmt.Errorf("API error: %s", evt.Error.Message)
					return
				}
				switch evt.Type {
				case "content_block_delta":
					if evt.Delta != nil && evt.Delta.Text != "" {
						select {
						case eventChan <- types.StreamEvent{TextDelta: evt.Delta.Text}:
						case <-ctx.Done():
							return
						}
					}
				case "message_delta":
					if evt.Delta != nil && evt.Delta.StopReason == "max_tokens" {
						finish = types.FinishLengthLimit
					}
				}
			}
			if err := scanner.Err(); err != nil {
				scanErrChan <- err
				return
			}
			select {
			case eventChan <- types.StreamEvent{FinishReason: finish}:
			case <-ctx.Done():
			}
		}()

		select {
		case <-scanDone:
			select {
			case err := <-scanErrChan:
				logging.APIError("[Anthropic] Stream: stream error after %v: %v", time.Since(startTime), err)
				errorChan <- fmt.Errorf("stream error: %w", err)
			default:
				logging.API("[Anthropic] Stream: completed in %v", time.Since(startTime))
			}
		case <-ctx.Done():
			resp.Body.Close()
			<-scanDone
			logging.APIWarn("[Anthropic] Stream: cancelled after %v", time.Since(startTime))
			errorChan <- ctx.Err()
		}
	}()

	return eventChan, errorChan
}

// trimDataPrefix strips the SSE "data:" prefix and surrounding whitespace.
func trimDataPrefix(line string) string {
	s := line[len("data:"):]
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
