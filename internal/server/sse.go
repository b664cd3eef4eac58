package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// SetSSEHeaders prepares a response for server-sent events.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// doneEvent is the terminal frame of a chat stream. MessageID and
// HasArtifact are set only when an assistant turn was persisted; failure
// frames carry the project id alone.
type doneEvent struct {
	Done        bool   `json:"done"`
	MessageID   string `json:"messageId,omitempty"`
	HasArtifact *bool  `json:"hasArtifact,omitempty"`
	ProjectID   string `json:"projectId"`
}

// SSEWriter serializes chat events onto one response stream. Once the
// done event has been written the writer refuses all further frames, so
// done is emitted at most once per request no matter which code path
// finishes the stream.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
	closed  bool
}

// NewSSEWriter wraps the response writer. Fails when the underlying
// writer cannot flush, since unflushed SSE frames defeat the point.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	return &SSEWriter{w: w, flusher: flusher}, nil
}

func (s *SSEWriter) writeEvent(payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.writeEventLocked(payload)
}

func (s *SSEWriter) writeEventLocked(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// WriteText emits a visible text delta. Empty deltas are dropped.
func (s *SSEWriter) WriteText(text string) error {
	if text == "" {
		return nil
	}
	return s.writeEvent(map[string]string{"text": text})
}

// WriteError emits a user-facing error frame. The stream stays open; the
// caller decides whether a done frame follows.
func (s *SSEWriter) WriteError(message string) error {
	return s.writeEvent(map[string]string{"error": message})
}

// WriteDone emits the terminal frame and seals the writer. Subsequent
// writes of any kind become no-ops.
func (s *SSEWriter) WriteDone(ev doneEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	ev.Done = true
	err := s.writeEventLocked(ev)
	s.closed = true
	return err
}

// Closed reports whether the done frame has been written.
func (s *SSEWriter) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
