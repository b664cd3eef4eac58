// Package pipeline contains the streaming response pipeline stages:
// intent classification, provider-call continuation, the incremental
// fence filter, and final code block extraction.
package pipeline

import (
	"strings"

	"codeloom/internal/types"
)

// greetingMaxLen is the message length above which a greeting keyword no
// longer classifies the message as a greeting.
const greetingMaxLen = 50

var greetingKeywords = []string{
	"hello", "hi ", "hi!", "hi,", "hey", "howdy",
	"good morning", "good afternoon", "good evening",
	"thanks", "thank you",
}

var questionKeywords = []string{
	"what", "how", "why", "when", "where", "who",
	"which", "can you explain", "explain", "tell me", "?",
}

var buildKeywords = []string{
	"build", "create", "make", "add", "implement", "write",
	"fix", "change", "update", "remove", "delete", "refactor",
	"component", "page", "button", "form", "style", "code", "app",
}

// DetectMessageType classifies a user message. Pure function: identical
// input always yields the same category.
//
// Short messages containing a greeting keyword are greetings. Messages
// with a question keyword and no build keyword are questions. Everything
// else is a build request.
func DetectMessageType(message string) types.MessageType {
	m := strings.ToLower(strings.TrimSpace(message))

	if len(m) < greetingMaxLen {
		for _, kw := range greetingKeywords {
			if strings.Contains(m, kw) || m == strings.TrimSpace(kw) {
				return types.MessageTypeGreeting
			}
		}
	}

	hasQuestion := false
	for _, kw := range questionKeywords {
		if strings.Contains(m, kw) {
			hasQuestion = true
			break
		}
	}
	if hasQuestion {
		hasBuild := false
		for _, kw := range buildKeywords {
			if strings.Contains(m, kw) {
				hasBuild = true
				break
			}
		}
		if !hasBuild {
			return types.MessageTypeQuestion
		}
	}

	return types.MessageTypeBuild
}

const buildSystemPrompt = `You are an expert web application developer. When the user asks you to build or change something, respond with a short explanation of what you are doing, followed by the complete contents of every file you create or modify.

Emit each file as a fenced code block tagged with its path, for example:

` + "```tsx file=\"src/App.tsx\"" + `
...file contents...
` + "```" + `

Always emit complete files, never fragments or diffs. Keep prose outside the fences brief.`

const questionSystemPrompt = `You are an expert web application developer. Answer the user's question clearly and concisely. Do not emit any code files unless explicitly asked to.`

const greetingSystemPrompt = `You are a friendly assistant for a web app builder. Respond briefly and warmly. Do not emit any code.`

// SystemPrompt returns the instructional wrapper for a classified message
// type.
func SystemPrompt(mt types.MessageType) string {
	switch mt {
	case types.MessageTypeGreeting:
		return greetingSystemPrompt
	case types.MessageTypeQuestion:
		return questionSystemPrompt
	default:
		return buildSystemPrompt
	}
}
