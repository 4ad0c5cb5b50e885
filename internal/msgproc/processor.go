// Package msgproc implements the Message Processor (L8): normalizing
// backend.Message values into accumulated assistant text, the tools used,
// and the session id carried forward into the next iteration (§4.7
// "Session resume"). Grounded in internal/agent/decide.go's
// message-accumulation idiom, generalized away from any single backend SDK.
package msgproc

import "github.com/agentrun/agentrun/internal/backend"

// Outcome accumulates one iteration's processed messages.
type Outcome struct {
	AssistantText string
	ToolsUsed     []string
	SessionID     string
	Errors        []string
}

// Processor folds a stream of backend.Message into an Outcome.
type Processor struct{}

// NewProcessor constructs a stateless Processor.
func NewProcessor() *Processor { return &Processor{} }

// Process drains msgs, accumulating them into an Outcome. It always
// returns (never errors): a KindError message is folded into
// Outcome.Errors (§7 BackendStreamError), not propagated as a Go error.
func (p *Processor) Process(msgs <-chan backend.Message) Outcome {
	var out Outcome
	for m := range msgs {
		switch m.Kind {
		case backend.KindAssistant:
			out.AssistantText += m.Content
		case backend.KindToolUse:
			out.ToolsUsed = append(out.ToolsUsed, m.ToolName)
		case backend.KindResult:
			if m.SessionID != "" {
				out.SessionID = m.SessionID
			}
		case backend.KindError:
			out.Errors = append(out.Errors, m.ErrMessage)
		case backend.KindUnknown:
			// Free-form commentary from an unrecognized message shape; the
			// core never inspects Raw beyond logging it (caller's concern).
		}
	}
	return out
}
