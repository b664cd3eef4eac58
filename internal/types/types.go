// Package types defines the shared data model for the codeloom pipeline:
// projects, conversation messages, extracted file records, artifacts, and
// the transient stream events exchanged with LLM providers.
package types

import "time"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageType is the classified intent of a user message. It selects the
// instructional wrapper sent to the model and whether the fence filter is
// engaged during streaming.
type MessageType string

const (
	MessageTypeGreeting MessageType = "greeting"
	MessageTypeQuestion MessageType = "question"
	MessageTypeBuild    MessageType = "build"
)

// FinishReason reports why a provider stopped generating.
type FinishReason string

const (
	// FinishNormal means generation completed on its own.
	FinishNormal FinishReason = "normal"
	// FinishLengthLimit means the provider hit its output token ceiling
	// and the response may be truncated mid-thought.
	FinishLengthLimit FinishReason = "length_limit"
)

// StreamEvent is a single increment of a provider response. Transient,
// never persisted. FinishReason is empty on ordinary delta events and set
// on the terminal event of a provider call.
type StreamEvent struct {
	TextDelta    string
	FinishReason FinishReason
}

// Project owns a conversation history. Only UpdatedAt is touched by the
// pipeline; everything else is managed by the surrounding application.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message is one conversation turn half (user or assistant) within a
// project. Immutable once written; the in-flight assistant turn is written
// exactly once, after streaming fully ends.
type Message struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// FileRecord is one extracted file revision. A new row is created per
// revision; previous content for diff stats is the most recent prior
// record with the same path in the same project.
//
// Additions and Deletions are the non-negative differences between old
// and new total line counts, not a true line diff.
type FileRecord struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	MessageID string    `json:"messageId"`
	Path      string    `json:"path"`
	Language  string    `json:"language"`
	Content   string    `json:"content"`
	Additions int       `json:"additions"`
	Deletions int       `json:"deletions"`
	CreatedAt time.Time `json:"createdAt"`
}

// ArtifactRecord groups the files produced by one assistant turn.
// FileIDs preserves the order the code blocks appeared in the source
// text, regardless of write completion order.
type ArtifactRecord struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	MessageID string    `json:"messageId"`
	Title     string    `json:"title"`
	FileIDs   []string  `json:"fileIds"`
	CreatedAt time.Time `json:"createdAt"`
}
