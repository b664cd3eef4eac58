package pipeline

import (
	"context"
	"fmt"

	"codeloom/internal/logging"
	"codeloom/internal/provider"
	"codeloom/internal/types"
)

// MaxContinuations bounds how many follow-up provider calls are issued
// when the backend keeps stopping at its output-length ceiling. With the
// initial call this allows at most MaxContinuations+1 provider calls per
// user turn.
const MaxContinuations = 5

// continueDirective is the fixed prompt appended on each continuation
// call so the model resumes mid-output instead of starting over.
const continueDirective = "Continue exactly where you left off. Do not repeat anything you have already written."

// Controller drives one or more provider calls for a single user turn,
// carrying forward accumulated output across length-limited stops. The
// accumulator and retry counter are owned here so each request's pipeline
// is independently testable.
type Controller struct {
	client           provider.StreamClient
	maxContinuations int
}

// NewController creates a controller for one turn.
func NewController(client provider.StreamClient) *Controller {
	return &Controller{client: client, maxContinuations: MaxContinuations}
}

// Run consumes the provider stream, forwarding every text delta to
// onDelta unchanged and appending it to the accumulator. When the
// provider reports a length-limited stop and the retry counter is below
// the ceiling, it re-invokes the provider with the history extended by
// the partial output plus the continue directive. Returns the full
// accumulated raw text.
//
// A non-nil error from onDelta aborts the turn immediately.
func (c *Controller) Run(ctx context.Context, req provider.Request, onDelta func(string) error) (string, error) {
	var accumulated string
	continuations := 0
	cur := req

	for {
		finish := types.FinishNormal

		events, errs := c.client.Stream(ctx, cur)
		for ev := range events {
			if ev.TextDelta != "" {
				accumulated += ev.TextDelta
				if err := onDelta(ev.TextDelta); err != nil {
					return accumulated, fmt.Errorf("delta handler: %w", err)
				}
			}
			if ev.FinishReason != "" {
				finish = ev.FinishReason
			}
		}
		if err := <-errs; err != nil {
			return accumulated, err
		}

		if finish != types.FinishLengthLimit || continuations >= c.maxContinuations {
			if finish == types.FinishLengthLimit {
				logging.Pipeline("continuation ceiling reached after %d retries, output may be truncated", continuations)
			}
			return accumulated, nil
		}

		continuations++
		logging.Pipeline("length-limited stop, issuing continuation %d/%d", continuations, c.maxContinuations)

		history := make([]provider.Message, 0, len(req.History)+2)
		history = append(history, req.History...)
		history = append(history,
			provider.Message{Role: "user", Content: req.Prompt},
			provider.Message{Role: "assistant", Content: accumulated},
		)
		cur = provider.Request{
			System:  req.System,
			History: history,
			Prompt:  continueDirective,
		}
	}
}
