// Package persist writes the results of one finished assistant turn:
// the prose message, every extracted file revision, and the artifact
// grouping them.
package persist

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"codeloom/internal/diff"
	"codeloom/internal/logging"
	"codeloom/internal/pipeline"
	"codeloom/internal/store"
	"codeloom/internal/types"
)

// Strategy selects how file revisions are written.
type Strategy int

const (
	// Sequential writes files one at a time in extraction order.
	Sequential Strategy = iota
	// FanOut writes files concurrently and joins on all of them. Diff
	// stats are identical to Sequential because both compute against the
	// same turn-start snapshot.
	FanOut
)

// Input carries everything needed to persist one turn.
type Input struct {
	ProjectID        string
	AssistantContent string
	Blocks           []pipeline.FileBlock
	ArtifactTitle    string
	Strategy         Strategy
}

// Result reports what was written.
type Result struct {
	MessageID   string
	ArtifactID  string
	HasArtifact bool
	Files       []types.FileRecord
}

// Engine persists turns against a store.
type Engine struct {
	store *store.Store
}

// NewEngine creates a persistence engine.
func NewEngine(s *store.Store) *Engine {
	return &Engine{store: s}
}

// PersistTurn writes the assistant message, the extracted file revisions,
// and the artifact record. Diff stats for every file are computed against
// the latest revisions as of turn start, read once up front. Any file
// write failure fails the whole turn; files already written stay written
// (best effort, no rollback).
//
// With no extracted blocks only the message is written and HasArtifact
// is false.
func (e *Engine) PersistTurn(ctx context.Context, in Input) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snapshot, err := e.store.LatestFilesSnapshot(in.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to read file snapshot: %w", err)
	}

	msg, err := e.store.InsertMessage(in.ProjectID, types.RoleAssistant, in.AssistantContent)
	if err != nil {
		return nil, fmt.Errorf("failed to persist assistant message: %w", err)
	}

	res := &Result{MessageID: msg.ID}
	if len(in.Blocks) == 0 {
		if err := e.store.TouchProject(in.ProjectID); err != nil {
			return nil, err
		}
		return res, nil
	}

	files := make([]types.FileRecord, len(in.Blocks))
	switch in.Strategy {
	case FanOut:
		g, gctx := errgroup.WithContext(ctx)
		for i, block := range in.Blocks {
			i, block := i, block
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				rec, err := e.writeFile(in.ProjectID, msg.ID, block, snapshot)
				if err != nil {
					return err
				}
				files[i] = *rec
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	default:
		for i, block := range in.Blocks {
			rec, err := e.writeFile(in.ProjectID, msg.ID, block, snapshot)
			if err != nil {
				return nil, err
			}
			files[i] = *rec
		}
	}
	res.Files = files

	fileIDs := make([]string, len(files))
	for i, f := range files {
		fileIDs[i] = f.ID
	}
	artifact, err := e.store.InsertArtifact(in.ProjectID, msg.ID, in.ArtifactTitle, fileIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to persist artifact: %w", err)
	}
	res.ArtifactID = artifact.ID
	res.HasArtifact = true

	if err := e.store.TouchProject(in.ProjectID); err != nil {
		return nil, err
	}
	logging.Store("Persisted turn %s: %d file(s), artifact %s", msg.ID, len(files), artifact.ID)
	return res, nil
}

func (e *Engine) writeFile(projectID, messageID string, block pipeline.FileBlock, snapshot map[string]string) (*types.FileRecord, error) {
	additions, deletions := diff.LineCounts(snapshot[block.Path], block.Content)
	rec, err := e.store.InsertFile(projectID, messageID, block.Path, block.Language, block.Content, additions, deletions)
	if err != nil {
		return nil, fmt.Errorf("failed to persist file %q: %w", block.Path, err)
	}
	return rec, nil
}
