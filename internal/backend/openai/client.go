package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/agentrun/agentrun/internal/backend"
	"github.com/agentrun/agentrun/internal/tool"
	openailib "github.com/sashabaranov/go-openai"
)

// toolSource is the subset of *tool.Registry the backend needs: enough to
// advertise function-calling tools (§6D) and to run ones the model calls,
// without this package depending on the registry's own construction.
type toolSource interface {
	Get(name string) (tool.Tool, bool)
	GenerateToolDefinitions() []tool.Definition
}

// maxToolRounds bounds the number of request/tool-call round trips within a
// single Query call, so a model that never stops requesting tools cannot
// hang a run forever.
const maxToolRounds = 8

// Client implements backend.Backend against any OpenAI-compatible chat
// completions endpoint. The retry-with-linear-backoff and
// streaming-with-sync-fallback idioms are adapted directly from
// internal/llm/openai/client.go. When a tool source is attached via
// WithTools, Query advertises req.AllowedTools as native function-calling
// tools (§6D) and runs the model/tool round trip internally, surfacing each
// call as a KindToolUse message before the final assistant content.
type Client struct {
	client *openailib.Client
	config *Config
	tools  toolSource
}

// New constructs a Client from an explicit Config.
func New(config *Config) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	clientConfig := openailib.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: time.Duration(config.HTTPTimeout) * time.Second}
	return &Client{client: openailib.NewClientWithConfig(clientConfig), config: config}, nil
}

// WithTools attaches a tool registry the client may advertise and dispatch
// against when a request declares allowedTools. Returns the same Client for
// chaining onto New's result.
func (c *Client) WithTools(registry *tool.Registry) *Client {
	c.tools = registry
	return c
}

// NewFromEnv constructs a Client from AGENTRUN_BACKEND_* environment variables.
func NewFromEnv() (*Client, error) {
	cfg, err := NewConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load backend config from env: %w", err)
	}
	return New(cfg)
}

func (c *Client) Name() string { return fmt.Sprintf("openai-compatible (%s)", c.config.Model) }

// Query implements backend.Backend.Query: a single-turn, buffered request
// whose response is delivered as a small async stream of typed messages
// (assistant content, then a result message carrying the iteration's
// session id — this adapter treats each call as self-contained, so
// SessionID in the result message simply echoes req.SessionID, allowing a
// stateful adapter to be swapped in later without changing the Runner).
func (c *Client) Query(ctx context.Context, req backend.Request) (<-chan backend.Message, error) {
	out := make(chan backend.Message, 4)

	go func() {
		defer close(out)

		messages := []openailib.ChatCompletionMessage{}
		if req.SystemPrompt != "" {
			messages = append(messages, openailib.ChatCompletionMessage{Role: openailib.ChatMessageRoleSystem, Content: req.SystemPrompt})
		}
		messages = append(messages, openailib.ChatCompletionMessage{Role: openailib.ChatMessageRoleUser, Content: req.Prompt})

		tools := c.resolveTools(req.AllowedTools)

		var content string
		var err error
		if len(tools) == 0 {
			content, err = c.streamOrFallback(ctx, c.buildRequest(messages, nil, true), out)
		} else {
			content, err = c.runToolLoop(ctx, messages, tools, out)
		}
		if err != nil {
			out <- backend.Message{Kind: backend.KindError, ErrMessage: err.Error()}
			return
		}
		if content != "" {
			out <- backend.Message{Kind: backend.KindAssistant, Content: content}
		}
		out <- backend.Message{Kind: backend.KindResult, SessionID: req.SessionID}
	}()

	return out, nil
}

// buildRequest assembles the outgoing ChatCompletionRequest, applying the
// configured model/temperature/max-tokens and an optional tool set.
func (c *Client) buildRequest(messages []openailib.ChatCompletionMessage, tools []openailib.Tool, stream bool) openailib.ChatCompletionRequest {
	req := openailib.ChatCompletionRequest{
		Model:    c.config.Model,
		Messages: messages,
		Stream:   stream,
		Tools:    tools,
	}
	if c.config.Temperature != nil {
		req.Temperature = *c.config.Temperature
	}
	if c.config.MaxTokens > 0 {
		req.MaxTokens = c.config.MaxTokens
	}
	return req
}

// resolveTools turns req.AllowedTools into native function-calling Tool
// definitions, sourced from the attached registry's GenerateToolDefinitions
// (§6D). A nil tools attachment or an empty allow-list means no tools are
// advertised this turn.
func (c *Client) resolveTools(allowedTools []string) []openailib.Tool {
	if c.tools == nil || len(allowedTools) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(allowedTools))
	for _, name := range allowedTools {
		allowed[name] = true
	}
	var tools []openailib.Tool
	for _, def := range c.tools.GenerateToolDefinitions() {
		if !allowed[def.Name] {
			continue
		}
		tools = append(tools, openailib.Tool{
			Type: openailib.ToolTypeFunction,
			Function: &openailib.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return tools
}

// runToolLoop drives the request/tool-call round trip: each round asks the
// model for a non-streaming completion, and if it responds with tool calls
// instead of final content, each call is emitted as a KindToolUse message
// (so the Message Processor observes it per §6D), executed against the
// attached registry, and appended back as a tool-role reply before the next
// round. Returns the first round whose message carries no tool calls.
func (c *Client) runToolLoop(ctx context.Context, messages []openailib.ChatCompletionMessage, tools []openailib.Tool, out chan<- backend.Message) (string, error) {
	for round := 0; round < maxToolRounds; round++ {
		resp, err := c.completeWithRetry(ctx, c.buildRequest(messages, tools, false))
		if err != nil {
			return "", err
		}
		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			return msg.Content, nil
		}
		messages = append(messages, msg)
		for _, call := range msg.ToolCalls {
			out <- backend.Message{Kind: backend.KindToolUse, ToolName: call.Function.Name}
			messages = append(messages, openailib.ChatCompletionMessage{
				Role:       openailib.ChatMessageRoleTool,
				ToolCallID: call.ID,
				Content:    c.executeTool(ctx, call),
			})
		}
	}
	return "", fmt.Errorf("exceeded %d tool-call rounds without a final answer", maxToolRounds)
}

// executeTool dispatches one model-requested call against the attached
// registry, returning the text fed back to the model as the tool reply —
// the registry's own error, a missing tool, or a successful Output are all
// folded into a single string since the wire role is "tool" content either
// way.
func (c *Client) executeTool(ctx context.Context, call openailib.ToolCall) string {
	t, ok := c.tools.Get(call.Function.Name)
	if !ok {
		return fmt.Sprintf("error: unknown tool %q", call.Function.Name)
	}
	result, err := t.Execute(ctx, []byte(call.Function.Arguments))
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	if result.Error != "" {
		return "error: " + result.Error
	}
	return result.Output
}

// streamOrFallback mirrors CallLLMStream: attempt a stream,
// fall back to a single non-streaming call (with retry) if stream creation
// fails, and tolerate mid-stream errors by returning whatever partial
// content was already accumulated (§7 BackendStreamError: "Record as
// iteration error; engine may repeat" — here we prefer returning partial
// content over discarding it, letting the Runner's step-flow repeat policy
// decide whether to retry).
func (c *Client) streamOrFallback(ctx context.Context, req openailib.ChatCompletionRequest, out chan<- backend.Message) (string, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		log.Printf("[Backend] stream creation failed, falling back to sync: %v", err)
		return c.callSync(ctx, req)
	}
	defer stream.Close()

	var content string
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if content != "" {
				log.Printf("[Backend] stream interrupted after %d chars: %v", len(content), err)
				break
			}
			return "", fmt.Errorf("stream recv error: %w", err)
		}
		if len(chunk.Choices) > 0 {
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				content += delta
			}
		}
	}
	return content, nil
}

func (c *Client) callSync(ctx context.Context, req openailib.ChatCompletionRequest) (string, error) {
	resp, err := c.completeWithRetry(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Message.Content, nil
}

// completeWithRetry performs a single non-streaming chat completion,
// retrying with linear backoff per c.config.MaxRetries.
func (c *Client) completeWithRetry(ctx context.Context, req openailib.ChatCompletionRequest) (openailib.ChatCompletionResponse, error) {
	req.Stream = false
	var resp openailib.ChatCompletionResponse
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		resp, lastErr = c.client.CreateChatCompletion(ctx, req)
		if lastErr == nil {
			break
		}
		if attempt < c.config.MaxRetries {
			wait := time.Duration(attempt+1) * time.Second
			log.Printf("[Backend] retry %d/%d after %v, error: %v", attempt+1, c.config.MaxRetries, wait, lastErr)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return openailib.ChatCompletionResponse{}, ctx.Err()
			}
		}
	}
	if lastErr != nil {
		return openailib.ChatCompletionResponse{}, fmt.Errorf("backend call failed after %d retries: %w", c.config.MaxRetries, lastErr)
	}
	if len(resp.Choices) == 0 {
		return openailib.ChatCompletionResponse{}, fmt.Errorf("no choices returned from backend")
	}
	return resp, nil
}
