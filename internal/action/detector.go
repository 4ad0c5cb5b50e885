// Package action implements the Action Detector (L3) and Action Executor &
// Handlers (L4): scanning fenced typed output blocks out of LLM text and
// dispatching them to handlers. Grounded in
// internal/agent/tool_node.go (error-folding-not-propagating dispatch
// idiom) and internal/thinking (fenced-block extraction helpers), and in
// internal/agent/decide.go's YAML/JSON fenced-block scanning pattern.
package action

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// DetectedAction is one parsed action block (§3).
type DetectedAction struct {
	Type     string         `json:"type"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Raw      string         `json:"raw"`
}

// Detector scans assistant text for fenced action blocks.
type Detector struct {
	outputFormat string
	allowedTypes map[string]bool
}

// NewDetector constructs a Detector for the agent's declared output format
// (default "action") and allowed action types.
func NewDetector(outputFormat string, allowedTypes []string) *Detector {
	if outputFormat == "" {
		outputFormat = "action"
	}
	allowed := make(map[string]bool, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[t] = true
	}
	return &Detector{outputFormat: outputFormat, allowedTypes: allowed}
}

func fenceRegexp(tag string) *regexp.Regexp {
	return regexp.MustCompile("(?s)```" + regexp.QuoteMeta(tag) + `\s*\n(.*?)\n?` + "```")
}

// Detect implements §4.4: unknown or malformed blocks are silently dropped
// (treated as free-form commentary), never surfaced as an error.
func (d *Detector) Detect(text string) []DetectedAction {
	re := fenceRegexp(d.outputFormat)
	matches := re.FindAllStringSubmatch(text, -1)

	var actions []DetectedAction
	for _, m := range matches {
		body := m[1]
		raw := m[0]

		var generic map[string]any
		if err := json.Unmarshal([]byte(body), &generic); err != nil {
			continue
		}
		typ, ok := generic["type"].(string)
		if !ok || typ == "" {
			continue
		}
		if len(d.allowedTypes) > 0 && !d.allowedTypes[typ] {
			continue
		}

		content, _ := generic["content"].(string)
		metadata := map[string]any{}
		for k, v := range generic {
			if k == "type" || k == "content" {
				continue
			}
			metadata[k] = v
		}
		actions = append(actions, DetectedAction{
			Type:     typ,
			Content:  content,
			Metadata: metadata,
			Raw:      strings.TrimSpace(raw),
		})
	}
	return actions
}

// RawBlock renders an action back into its wire format, used by tests
// verifying the detector round-trip law (§8).
func (d *Detector) RawBlock(a DetectedAction) (string, error) {
	payload := map[string]any{"type": a.Type}
	if a.Content != "" {
		payload["content"] = a.Content
	}
	for k, v := range a.Metadata {
		payload[k] = v
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("action: marshal round-trip block: %w", err)
	}
	return fmt.Sprintf("```%s\n%s\n```", d.outputFormat, body), nil
}
