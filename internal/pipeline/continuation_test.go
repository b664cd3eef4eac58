package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeloom/internal/provider"
	"codeloom/internal/types"
)

// scriptedClient replays one canned response per Stream call.
type scriptedClient struct {
	responses []scriptedResponse
	calls     int
	requests  []provider.Request
}

type scriptedResponse struct {
	deltas []string
	finish types.FinishReason
	err    error
}

func (c *scriptedClient) Stream(ctx context.Context, req provider.Request) (<-chan types.StreamEvent, <-chan error) {
	events := make(chan types.StreamEvent, 100)
	errs := make(chan error, 1)

	idx := c.calls
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	resp := c.responses[idx]
	c.calls++
	c.requests = append(c.requests, req)

	go func() {
		defer close(events)
		defer close(errs)
		for _, d := range resp.deltas {
			events <- types.StreamEvent{TextDelta: d}
		}
		if resp.err != nil {
			errs <- resp.err
			return
		}
		events <- types.StreamEvent{FinishReason: resp.finish}
	}()
	return events, errs
}

func (c *scriptedClient) Model() string { return "scripted" }

func collectDeltas(collected *[]string) func(string) error {
	return func(d string) error {
		*collected = append(*collected, d)
		return nil
	}
}

func TestControllerSingleCallOnNormalFinish(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{deltas: []string{"hello ", "world"}, finish: types.FinishNormal},
	}}
	ctrl := NewController(client)

	var deltas []string
	raw, err := ctrl.Run(context.Background(), provider.Request{Prompt: "hi"}, collectDeltas(&deltas))
	require.NoError(t, err)
	assert.Equal(t, "hello world", raw)
	assert.Equal(t, []string{"hello ", "world"}, deltas)
	assert.Equal(t, 1, client.calls)
}

func TestControllerContinuesOnLengthLimit(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{deltas: []string{"part one "}, finish: types.FinishLengthLimit},
		{deltas: []string{"part two"}, finish: types.FinishNormal},
	}}
	ctrl := NewController(client)

	raw, err := ctrl.Run(context.Background(), provider.Request{
		History: []provider.Message{{Role: "user", Content: "earlier"}},
		Prompt:  "build it",
	}, func(string) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, "part one part two", raw)
	require.Equal(t, 2, client.calls)

	// The second call carries the original prompt and the partial output
	// in history, with the continue directive as the new prompt.
	second := client.requests[1]
	require.Len(t, second.History, 3)
	assert.Equal(t, "earlier", second.History[0].Content)
	assert.Equal(t, "build it", second.History[1].Content)
	assert.Equal(t, "part one ", second.History[2].Content)
	assert.Equal(t, "assistant", second.History[2].Role)
	assert.NotEqual(t, "build it", second.Prompt)
}

func TestControllerStopsAtContinuationCeiling(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{deltas: []string{"x"}, finish: types.FinishLengthLimit},
	}}
	ctrl := NewController(client)

	raw, err := ctrl.Run(context.Background(), provider.Request{Prompt: "go"}, func(string) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, MaxContinuations+1, client.calls)
	assert.Equal(t, "xxxxxx", raw)
}

func TestControllerReturnsStreamError(t *testing.T) {
	wantErr := errors.New("upstream exploded")
	client := &scriptedClient{responses: []scriptedResponse{
		{deltas: []string{"partial "}, err: wantErr},
	}}
	ctrl := NewController(client)

	raw, err := ctrl.Run(context.Background(), provider.Request{Prompt: "go"}, func(string) error { return nil })
	require.ErrorIs(t, err, wantErr)
	assert.Equal(t, "partial ", raw)
	assert.Equal(t, 1, client.calls)
}

func TestControllerAbortsWhenDeltaHandlerFails(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{deltas: []string{"a", "b", "c"}, finish: types.FinishNormal},
	}}
	ctrl := NewController(client)

	count := 0
	_, err := ctrl.Run(context.Background(), provider.Request{Prompt: "go"}, func(string) error {
		count++
		if count == 2 {
			return fmt.Errorf("client went away")
		}
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client went away")
	assert.Equal(t, 2, count)
}
