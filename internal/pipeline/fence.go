package pipeline

import (
	"regexp"
	"strings"
)

// fenceOpenRe matches an opening code fence annotated with a file path:
// a fence marker, a language token, and a file="..." attribute. Only
// these fences are withheld from the live prose stream; plain fences
// without a file attribute pass through untouched. The open and close
// grammars here must stay line-for-line equivalent with fileBlockRe in
// extract.go: anything withheld live must be recovered by the extractor.
var fenceOpenRe = regexp.MustCompile("^```[A-Za-z0-9+#._-]+[ \t]+file=\"[^\"]+\"[ \t]*$")

// fenceCloseRe matches a bare closing fence at column 0, optionally with
// trailing whitespace. Indented fences inside a payload do not close it.
var fenceCloseRe = regexp.MustCompile("^```[ \t]*$")

// FenceFilter is a line-buffered state machine that separates prose to
// show immediately from file-tagged fence payloads to withhold. Fence
// markers can straddle chunk boundaries, so text is only classified once
// a full line is available; the trailing unterminated fragment is held
// in the buffer until the next delta or Flush.
type FenceFilter struct {
	buf              string
	insideFencedFile bool
}

// NewFenceFilter creates a filter for one build-classified turn.
func NewFenceFilter() *FenceFilter {
	return &FenceFilter{}
}

// Push appends a newly arrived delta and returns the prose that became
// safe to show. Returned text may be empty when the delta was entirely
// fence payload or an incomplete line.
func (f *FenceFilter) Push(delta string) string {
	f.buf += delta

	parts := strings.Split(f.buf, "\n")
	f.buf = parts[len(parts)-1]
	lines := parts[:len(parts)-1]

	var out strings.Builder
	for _, line := range lines {
		trimmed := strings.TrimRight(line, "\r")
		switch {
		case fenceOpenRe.MatchString(trimmed):
			f.insideFencedFile = true
		case f.insideFencedFile && fenceCloseRe.MatchString(trimmed):
			f.insideFencedFile = false
		case !f.insideFencedFile:
			out.WriteString(line)
			out.WriteString("\n")
		}
	}
	return out.String()
}

// Flush returns any held prose once the stream has ended. A trailing
// fragment inside an unterminated fence is withheld (the fence is treated
// as implicitly closed at stream end; the extractor recovers its content),
// as is a fragment that is itself an opening file-fence line.
func (f *FenceFilter) Flush() string {
	rest := f.buf
	f.buf = ""
	if f.insideFencedFile {
		return ""
	}
	if fenceOpenRe.MatchString(strings.TrimRight(rest, "\r")) {
		return ""
	}
	return rest
}

// InsideFencedFile reports whether the filter is currently withholding
// fence payload.
func (f *FenceFilter) InsideFencedFile() bool {
	return f.insideFencedFile
}
