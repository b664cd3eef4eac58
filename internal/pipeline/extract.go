package pipeline

import (
	"regexp"
	"strings"
)

// fileBlockRe matches a complete file-tagged fenced block: opening fence
// with language token and file attribute, the interior, and either a bare
// closing fence line or end of text (a build response that ends without a
// closing fence is treated as implicitly closed).
var fileBlockRe = regexp.MustCompile("(?ms)^```([A-Za-z0-9+#._-]+)[ \t]+file=\"([^\"]+)\"[ \t]*\r?\n(.*?)(?:^```[ \t]*\r?$\n?|\\z)")

// FileBlock is one extracted file: the fence's language token, the
// declared path, and the fence interior trimmed of leading and trailing
// blank lines.
type FileBlock struct {
	Language string
	Path     string
	Content  string
}

// ExtractFileBlocks finds every file-tagged fenced block in the full
// accumulated raw text, in source order. It runs once, after streaming
// ends; the live fence filter is only an approximation and this is the
// source of truth for what was generated.
func ExtractFileBlocks(raw string) []FileBlock {
	matches := fileBlockRe.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return nil
	}

	blocks := make([]FileBlock, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, FileBlock{
			Language: m[1],
			Path:     m[2],
			Content:  trimBlankLines(m[3]),
		})
	}
	return blocks
}

// StripFileBlocks returns the raw text with every file-tagged fenced
// region removed. This prose-only text is what gets persisted as the
// assistant turn's content.
func StripFileBlocks(raw string) string {
	return fileBlockRe.ReplaceAllString(raw, "")
}

// trimBlankLines removes leading and trailing blank lines while leaving
// interior whitespace intact.
func trimBlankLines(s string) string {
	lines := strings.Split(s, "\n")

	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	end := len(lines)
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}
