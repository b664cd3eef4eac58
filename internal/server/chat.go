package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"codeloom/internal/logging"
	"codeloom/internal/persist"
	"codeloom/internal/pipeline"
	"codeloom/internal/provider"
	"codeloom/internal/types"
)

// chatRequest is the body of POST /v1/chat/stream.
type chatRequest struct {
	ProjectID   string `json:"projectId"`
	Message     string `json:"message"`
	Model       string `json:"model"`
	DiscussMode bool   `json:"discussMode"`
	IsAutomated bool   `json:"isAutomated"`
}

// handleChatStream runs one full pipeline turn over SSE: classify the
// message, stream the provider response with the fence filter engaged
// for build turns, extract file blocks from the accumulated raw text,
// persist the turn, and finish with exactly one done frame.
//
// Protocol and response-code errors happen before any SSE bytes; once
// streaming has started every failure is reported in-band as an error
// frame followed by the done frame.
func (s *Server) handleChatStream(c *gin.Context) {
	var req chatRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.ProjectID == "" || strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "projectId and message are required"})
		return
	}

	project, err := s.store.GetProject(req.ProjectID)
	if err != nil {
		logging.ServerError("Failed to load project %s: %v", req.ProjectID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load project"})
		return
	}
	if project == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}

	SetSSEHeaders(c.Writer)
	sse, err := NewSSEWriter(c.Writer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	// Whatever path exits below, the client gets exactly one done frame.
	// Success and error paths write richer done frames first; the writer
	// turns this fallback into a no-op once sealed.
	defer func() {
		_ = sse.WriteDone(doneEvent{ProjectID: req.ProjectID})
	}()

	messageType := pipeline.DetectMessageType(req.Message)
	if req.DiscussMode {
		messageType = types.MessageTypeQuestion
	}
	logging.Server("Chat turn for project %s classified as %s", req.ProjectID, messageType)

	history, err := s.store.ListMessages(req.ProjectID)
	if err != nil {
		logging.ServerError("Failed to load history for %s: %v", req.ProjectID, err)
		_ = sse.WriteError("Failed to load conversation history")
		return
	}

	// Retried turns (same text as the current tail) are not re-recorded.
	lastUser, err := s.store.LastUserMessage(req.ProjectID)
	if err != nil {
		logging.ServerError("Failed to check last user message for %s: %v", req.ProjectID, err)
		_ = sse.WriteError("Failed to save message")
		return
	}
	if lastUser == nil || lastUser.Content != req.Message {
		if _, err := s.store.InsertMessage(req.ProjectID, types.RoleUser, req.Message); err != nil {
			logging.ServerError("Failed to save user message for %s: %v", req.ProjectID, err)
			_ = sse.WriteError("Failed to save message")
			return
		}
	}

	client, err := s.factory.ClientFor(req.Model)
	if err != nil {
		logging.ServerError("Provider resolution failed for %q: %v", req.Model, err)
		_ = sse.WriteError(err.Error())
		return
	}

	providerReq := provider.Request{
		System:  pipeline.SystemPrompt(messageType),
		History: toProviderHistory(history),
		Prompt:  req.Message,
	}

	var filter *pipeline.FenceFilter
	if messageType == types.MessageTypeBuild {
		filter = pipeline.NewFenceFilter()
	}
	onDelta := func(delta string) error {
		if filter != nil {
			return sse.WriteText(filter.Push(delta))
		}
		return sse.WriteText(delta)
	}

	ctx := c.Request.Context()
	ctrl := pipeline.NewController(client)
	raw, err := ctrl.Run(ctx, providerReq, onDelta)

	aborted := ctx.Err() != nil
	if err != nil && !aborted {
		logging.StreamError("Provider stream failed for project %s: %v", req.ProjectID, err)
		_ = sse.WriteError(err.Error())
		return
	}
	if aborted && !req.IsAutomated {
		logging.Server("Client aborted turn for project %s, discarding partial output", req.ProjectID)
		return
	}

	persistCtx := ctx
	if aborted {
		// Automated turns have no one watching the stream; the partial
		// output is still worth keeping.
		persistCtx = context.WithoutCancel(ctx)
	} else if filter != nil {
		_ = sse.WriteText(filter.Flush())
	}

	blocks := pipeline.ExtractFileBlocks(raw)
	title := project.Name
	if title == "" && len(blocks) > 0 {
		title = blocks[0].Path
	}

	res, err := s.persist.PersistTurn(persistCtx, persist.Input{
		ProjectID:        req.ProjectID,
		AssistantContent: strings.TrimSpace(pipeline.StripFileBlocks(raw)),
		Blocks:           blocks,
		ArtifactTitle:    title,
		Strategy:         persist.FanOut,
	})
	if err != nil {
		logging.StoreError("Failed to persist turn for project %s: %v", req.ProjectID, err)
		_ = sse.WriteError("Failed to save response")
		return
	}

	_ = sse.WriteDone(doneEvent{
		MessageID:   res.MessageID,
		HasArtifact: &res.HasArtifact,
		ProjectID:   req.ProjectID,
	})
}

func toProviderHistory(messages []types.Message) []provider.Message {
	if len(messages) == 0 {
		return nil
	}
	out := make([]provider.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, provider.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}
