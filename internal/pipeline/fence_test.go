package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedAll(f *FenceFilter, chunks []string) string {
	var out strings.Builder
	for _, c := range chunks {
		out.WriteString(f.Push(c))
	}
	out.WriteString(f.Flush())
	return out.String()
}

func TestFenceFilterWithholdsFileBlock(t *testing.T) {
	f := NewFenceFilter()
	raw := "Here is the app.\n```tsx file=\"src/App.tsx\"\nexport default function App() {}\n```\nAll done.\n"
	got := feedAll(f, []string{raw})
	assert.Equal(t, "Here is the app.\nAll done.\n", got)
}

func TestFenceFilterMarkerSplitAcrossChunks(t *testing.T) {
	f := NewFenceFilter()
	chunks := []string{
		"Intro line\n``",
		"`tsx fi",
		"le=\"src/App.tsx\"\nconst x",
		" = 1\n``",
		"`\nOutro line\n",
	}
	got := feedAll(f, chunks)
	assert.Equal(t, "Intro line\nOutro line\n", got)
}

func TestFenceFilterPlainFencePassesThrough(t *testing.T) {
	f := NewFenceFilter()
	raw := "Example:\n```bash\nnpm install\n```\nRun it.\n"
	got := feedAll(f, []string{raw})
	assert.Equal(t, raw, got)
}

func TestFenceFilterNestedBackticksCloseEarly(t *testing.T) {
	// A bare fence line inside a file payload closes the region; the
	// remainder of the payload leaks to the prose stream. The extractor
	// pass over the raw text has the same grammar, so persisted content
	// matches what was withheld.
	f := NewFenceFilter()
	raw := "```md file=\"README.md\"\nUsage:\n```\nleaked line\n"
	got := feedAll(f, []string{raw})
	assert.Equal(t, "leaked line\n", got)
	assert.False(t, f.InsideFencedFile())
}

func TestFenceFilterFenceWithoutLanguagePassesThrough(t *testing.T) {
	// A fence carrying only a file attribute is not part of the file
	// block grammar; the extractor ignores it, so the filter must stream
	// it verbatim rather than withhold content that will never persist.
	f := NewFenceFilter()
	raw := "Intro.\n``` file=\"src/App.tsx\"\nconst hidden = 1\n```\nOutro.\n"
	got := feedAll(f, []string{raw})
	assert.Equal(t, raw, got)
	assert.Nil(t, ExtractFileBlocks(raw))
}

func TestFenceFilterIndentedCloseStaysInside(t *testing.T) {
	// An indented bare fence inside a payload does not close the region,
	// matching the extractor's column-0 close requirement: the indented
	// line and everything after it stay in the file, not the prose.
	f := NewFenceFilter()
	raw := "```md file=\"README.md\"\nUsage:\n   ```\nstill hidden\n```\nAfter.\n"
	got := feedAll(f, []string{raw})
	assert.Equal(t, "After.\n", got)

	blocks := ExtractFileBlocks(raw)
	require.Len(t, blocks, 1)
	assert.Equal(t, "Usage:\n   ```\nstill hidden", blocks[0].Content)
}

func TestFenceFilterCloseWithTrailingWhitespace(t *testing.T) {
	f := NewFenceFilter()
	raw := "```ts file=\"a.ts\"\nconst a = 1\n``` \nAfter.\n"
	got := feedAll(f, []string{raw})
	assert.Equal(t, "After.\n", got)
}

func TestFenceFilterMissingClosingFence(t *testing.T) {
	f := NewFenceFilter()
	var out strings.Builder
	out.WriteString(f.Push("Building now.\n```tsx file=\"src/App.tsx\"\nconst a = 1\nconst b = 2"))
	assert.True(t, f.InsideFencedFile())
	out.WriteString(f.Flush())
	assert.Equal(t, "Building now.\n", out.String())
}

func TestFenceFilterFlushReturnsTrailingProse(t *testing.T) {
	f := NewFenceFilter()
	out := f.Push("Almost done")
	assert.Empty(t, out)
	assert.Equal(t, "Almost done", f.Flush())
}

func TestFenceFilterFlushWithholdsDanglingOpenFence(t *testing.T) {
	f := NewFenceFilter()
	_ = f.Push("```tsx file=\"src/App.tsx\"")
	assert.Empty(t, f.Flush())
}

func TestFenceFilterMultipleFiles(t *testing.T) {
	f := NewFenceFilter()
	raw := "Two files coming.\n" +
		"```ts file=\"src/a.ts\"\nexport const a = 1\n```\n" +
		"And the second:\n" +
		"```ts file=\"src/b.ts\"\nexport const b = 2\n```\n" +
		"Done.\n"
	got := feedAll(f, []string{raw})
	assert.Equal(t, "Two files coming.\nAnd the second:\nDone.\n", got)
}

func TestFenceFilterByteAtATime(t *testing.T) {
	raw := "Hi.\n```tsx file=\"src/App.tsx\"\nbody\n```\nBye.\n"
	f := NewFenceFilter()
	var chunks []string
	for _, r := range raw {
		chunks = append(chunks, string(r))
	}
	got := feedAll(f, chunks)
	assert.Equal(t, "Hi.\nBye.\n", got)
}
