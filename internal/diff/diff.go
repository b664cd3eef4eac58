// Package diff computes change statistics and hunk-level diffs between
// file revisions using the sergi/go-diff library.
package diff

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// LineCounts returns the additions/deletions counters stored on a file
// revision: the non-negative differences between old and new total line
// counts. This is deliberately not a true line diff - a revision that
// rewrites every line of a same-length file reports 0/0. At least one of
// the two values is always zero.
func LineCounts(oldContent, newContent string) (additions, deletions int) {
	oldLines := countLines(oldContent)
	newLines := countLines(newContent)
	if newLines > oldLines {
		additions = newLines - oldLines
	}
	if oldLines > newLines {
		deletions = oldLines - newLines
	}
	return additions, deletions
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}

// LineType represents the type of a diff line.
type LineType int

const (
	LineContext LineType = iota
	LineAdded
	LineRemoved
)

// Line is a single line in a revision diff.
type Line struct {
	LineNum int      `json:"lineNum"`
	Content string   `json:"content"`
	Type    LineType `json:"type"`
}

// Hunk groups a run of changes with surrounding context.
type Hunk struct {
	OldStart int    `json:"oldStart"`
	OldCount int    `json:"oldCount"`
	NewStart int    `json:"newStart"`
	NewCount int    `json:"newCount"`
	Lines    []Line `json:"lines"`
}

// RevisionDiff is the hunk-level difference between two revisions of one
// file path.
type RevisionDiff struct {
	Path  string `json:"path"`
	IsNew bool   `json:"isNew"`
	Hunks []Hunk `json:"hunks"`
}

// contextLines is the number of unchanged lines kept around each hunk.
const contextLines = 3

// Engine computes revision diffs.
type Engine struct {
	dmp *diffmatchpatch.DiffMatchPatch
}

// NewEngine creates a diff engine tuned for code content.
func NewEngine() *Engine {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0 // accuracy over speed
	return &Engine{dmp: dmp}
}

// ComputeRevisionDiff diffs two revisions of a file. A line-level
// reduction avoids newline boundary artifacts when converting character
// diffs back to line operations.
func (e *Engine) ComputeRevisionDiff(path, oldContent, newContent string) *RevisionDiff {
	rd := &RevisionDiff{
		Path:  path,
		IsNew: oldContent == "",
	}

	a, b, lineArray := e.dmp.DiffLinesToChars(oldContent, newContent)
	diffs := e.dmp.DiffMain(a, b, false)
	diffs = e.dmp.DiffCleanupSemantic(diffs)
	diffs = e.dmp.DiffCharsToLines(diffs, lineArray)

	rd.Hunks = groupIntoHunks(diffsToOperations(diffs))
	return rd
}

type operation struct {
	typ     LineType
	oldLine int
	newLine int
	content string
}

// diffsToOperations flattens diffmatchpatch diffs into per-line operations
// with running old/new line numbers.
func diffsToOperations(diffs []diffmatchpatch.Diff) []operation {
	ops := make([]operation, 0)
	oldLine := 0
	newLine := 0

	for _, d := range diffs {
		lines := strings.Split(d.Text, "\n")
		if len(lines) > 0 && lines[len(lines)-1] == "" {
			lines = lines[:len(lines)-1]
		}

		for _, line := range lines {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				ops = append(ops, operation{typ: LineContext, oldLine: oldLine, newLine: newLine, content: line})
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				ops = append(ops, operation{typ: LineRemoved, oldLine: oldLine, newLine: -1, content: line})
				oldLine++
			case diffmatchpatch.DiffInsert:
				ops = append(ops, operation{typ: LineAdded, oldLine: -1, newLine: newLine, content: line})
				newLine++
			}
		}
	}
	return ops
}

// groupIntoHunks collects change runs plus context into hunks.
func groupIntoHunks(ops []operation) []Hunk {
	if len(ops) == 0 {
		return nil
	}

	hunks := make([]Hunk, 0)
	var cur *Hunk
	lastChangeIdx := -1

	for i, op := range ops {
		isChange := op.typ != LineContext

		if isChange {
			if cur == nil {
				cur = &Hunk{Lines: make([]Line, 0)}

				start := i - contextLines
				if start < 0 {
					start = 0
				}
				for j := start; j < i; j++ {
					if ops[j].typ == LineContext {
						cur.Lines = append(cur.Lines, Line{
							LineNum: ops[j].oldLine + 1,
							Content: ops[j].content,
							Type:    LineContext,
						})
					}
				}

				cur.OldStart = ops[start].oldLine + 1
				cur.NewStart = ops[start].newLine + 1
				if ops[start].oldLine < 0 {
					cur.OldStart = 0
				}
				if ops[start].newLine < 0 {
					cur.NewStart = 0
				}
			}
			lastChangeIdx = i
		}

		if cur != nil {
			lineNum := op.oldLine + 1
			if op.typ == LineAdded {
				lineNum = op.newLine + 1
			}
			cur.Lines = append(cur.Lines, Line{LineNum: lineNum, Content: op.content, Type: op.typ})

			if op.typ == LineContext && i-lastChangeIdx > contextLines {
				trimTo := len(cur.Lines) - (i - lastChangeIdx - contextLines)
				if trimTo > 0 && trimTo < len(cur.Lines) {
					cur.Lines = cur.Lines[:trimTo]
				}
				computeHunkCounts(cur)
				hunks = append(hunks, *cur)
				cur = nil
			}
		}
	}

	if cur != nil && len(cur.Lines) > 0 {
		computeHunkCounts(cur)
		hunks = append(hunks, *cur)
	}
	return hunks
}

func computeHunkCounts(h *Hunk) {
	for _, line := range h.Lines {
		if line.Type == LineRemoved || line.Type == LineContext {
			h.OldCount++
		}
		if line.Type == LineAdded || line.Type == LineContext {
			h.NewCount++
		}
	}
}
