// Package backend defines the abstract Query Backend interface (L7): an
// async stream of typed messages from an LLM-like service. Per Design
// Notes ("do not leak backend SDK types into the Runner"), this package
// has zero dependency on any concrete SDK — the OpenAI-compatible adapter
// lives in internal/backend/openai and only it imports
// github.com/sashabaranov/go-openai.
package backend

import (
	"context"

	"github.com/agentrun/agentrun/internal/agentdef"
)

// MessageKind discriminates the sealed message sum type (§6).
type MessageKind string

const (
	KindAssistant MessageKind = "assistant"
	KindToolUse   MessageKind = "toolUse"
	KindResult    MessageKind = "result"
	KindError     MessageKind = "error"
	KindUnknown   MessageKind = "unknown"
)

// Message is one item of the backend's async stream. Exactly one of the
// kind-specific fields is meaningful, selected by Kind — modeled as a
// struct with a discriminant rather than an interface so callers can
// switch on Kind without type assertions.
type Message struct {
	Kind MessageKind

	// KindAssistant
	Content string

	// KindToolUse
	ToolName string

	// KindResult
	SessionID string

	// KindError
	ErrMessage string

	// KindUnknown
	Raw any
}

// Request is the input to Query (§6 Query Backend interface).
type Request struct {
	Prompt         string
	SystemPrompt   string
	Cwd            string
	SessionID      string // passed through unchanged when resuming (§4.7 "Session resume")
	AllowedTools   []string
	PermissionMode agentdef.PermissionMode
	Sandbox        *agentdef.SandboxConfig
}

// Backend is the abstract async query interface every concrete adapter
// (OpenAI-compatible, etc.) implements.
type Backend interface {
	// Query streams messages for one turn. The returned channel is closed
	// when the stream ends (normally or via ctx cancellation); a
	// BackendStreamError (§7) is delivered as a KindError message rather
	// than only as the returned error, so partial output already sent on
	// the channel is not lost.
	Query(ctx context.Context, req Request) (<-chan Message, error)
	Name() string
}
