package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// CompletionClient is the minimal shape of a backend that only exposes a
// single-string completion call, with no native chat or tool-call
// support (e.g. a bare text-generation endpoint).
type CompletionClient interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	Ping(ctx context.Context) error
}

const toolCallInstructions = `You have access to the following tools. To use one, respond with ` +
	`ONLY a JSON object of the form {"tool_call": {"name": "...", "arguments": {...}}} and nothing else.`

var toolCallEnvelope = regexp.MustCompile(`(?s)\{\s*"tool_call"\s*:\s*\{.*?\}\s*\}`)

// CompletionAdapter wraps a CompletionClient to satisfy the Client
// interface: it flattens chat messages into a single prompt, appends a
// serialised tool catalogue to the system prompt when tools are
// offered, and scans the completion for an embedded tool-call envelope.
type CompletionAdapter struct {
	backend CompletionClient
}

// NewCompletionAdapter wraps backend so it can be used wherever a
// chat-style Client is expected.
func NewCompletionAdapter(backend CompletionClient) *CompletionAdapter {
	return &CompletionAdapter{backend: backend}
}

// Chat flattens messages and tools into a single completion call.
func (a *CompletionAdapter) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	system, prompt := flattenMessages(messages)
	if len(tools) > 0 {
		system = appendToolCatalogue(system, tools)
	}

	text, err := a.backend.Complete(ctx, system, prompt)
	if err != nil {
		return nil, fmt.Errorf("completion backend: %w", err)
	}

	return decodeCompletionResponse(model, text), nil
}

// ChatStream has no incremental output to offer; it performs the full
// completion and delivers it as one KindToken event carrying the whole
// text (omitted when the text is empty) followed by a KindDone event.
func (a *CompletionAdapter) ChatStream(ctx context.Context, model string, messages []Message, tools []map[string]any, callback StreamCallback) (*ChatResponse, error) {
	resp, err := a.Chat(ctx, model, messages, tools)
	if err != nil {
		return nil, err
	}
	if callback != nil {
		if resp.Message.Content != "" {
			callback(StreamEvent{Kind: KindToken, Token: resp.Message.Content})
		}
		callback(StreamEvent{Kind: KindDone, Response: resp})
	}
	return resp, nil
}

// Ping delegates to the backend.
func (a *CompletionAdapter) Ping(ctx context.Context) error {
	return a.backend.Ping(ctx)
}

// flattenMessages turns a chat transcript into a system prompt and a
// single user-facing prompt, one "[role]\n<content>" section per
// message. Tool results are prefixed "[Tool Result]" so the model can
// distinguish them from ordinary turns.
func flattenMessages(messages []Message) (system, prompt string) {
	var systemParts []string
	var promptParts []string

	for _, m := range messages {
		switch m.Role {
		case "system":
			systemParts = append(systemParts, m.Content)
		case "tool":
			promptParts = append(promptParts, "[Tool Result]\n"+m.Content)
		default:
			promptParts = append(promptParts, fmt.Sprintf("[%s]\n%s", m.Role, m.Content))
		}
	}

	return strings.Join(systemParts, "\n\n"), strings.Join(promptParts, "\n\n")
}

// appendToolCatalogue serialises tools (OpenAI function-call shape) into
// the system prompt along with instructions for how to invoke one.
func appendToolCatalogue(system string, tools []map[string]any) string {
	catalogue, err := json.Marshal(tools)
	if err != nil {
		return system
	}
	return system + "\n\n" + toolCallInstructions + "\n\nTools:\n" + string(catalogue)
}

// decodeCompletionResponse scans text for the first JSON object matching
// the {"tool_call": {"name": ..., "arguments": {...}}} shape. If found,
// it synthesises a single ToolCall with a locally-minted id and strips
// the envelope from the visible content.
func decodeCompletionResponse(model, text string) *ChatResponse {
	match := toolCallEnvelope.FindString(text)
	if match == "" {
		return &ChatResponse{Model: model, Message: Message{Role: "assistant", Content: text}, Done: true}
	}

	var envelope struct {
		ToolCall struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		} `json:"tool_call"`
	}
	if err := json.Unmarshal([]byte(match), &envelope); err != nil || envelope.ToolCall.Name == "" {
		return &ChatResponse{Model: model, Message: Message{Role: "assistant", Content: text}, Done: true}
	}

	tc := ToolCall{ID: "local_" + envelope.ToolCall.Name}
	tc.Function.Name = envelope.ToolCall.Name
	tc.Function.Arguments = envelope.ToolCall.Arguments

	remainder := strings.TrimSpace(strings.Replace(text, match, "", 1))
	return &ChatResponse{
		Model:   model,
		Message: Message{Role: "assistant", Content: remainder, ToolCalls: []ToolCall{tc}},
		Done:    true,
	}
}
