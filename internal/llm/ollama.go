// Package llm provides LLM client implementations.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaClient is a client for the Ollama API.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(baseURL string) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute, // Large models with tools need time
		},
	}
}

// ollamaChatRequest is the request format for Ollama's chat API.
type ollamaChatRequest struct {
	Model    string           `json:"model"`
	Messages []Message        `json:"messages"`
	Stream   bool             `json:"stream"`
	Tools    []map[string]any `json:"tools,omitempty"`
	Options  *ollamaOptions   `json:"options,omitempty"`
}

// ollamaOptions are Ollama-specific model parameters.
type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// ollamaWireResponse is the wire response from Ollama's chat API.
type ollamaWireResponse struct {
	Model     string  `json:"model"`
	CreatedAt string  `json:"created_at"`
	Message   Message `json:"message"`
	Done      bool    `json:"done"`

	TotalDuration      int64 `json:"total_duration,omitempty"`
	LoadDuration       int64 `json:"load_duration,omitempty"`
	PromptEvalCount    int   `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration int64 `json:"prompt_eval_duration,omitempty"`
	EvalCount          int   `json:"eval_count,omitempty"`
	EvalDuration       int64 `json:"eval_duration,omitempty"`
}

func (r ollamaWireResponse) toChatResponse() *ChatResponse {
	// An empty or unparseable created_at leaves CreatedAt as the zero time.
	createdAt, _ := time.Parse(time.RFC3339Nano, r.CreatedAt)
	return &ChatResponse{
		Model:         r.Model,
		CreatedAt:     createdAt,
		Message:       r.Message,
		Done:          r.Done,
		OutputTokens:  r.EvalCount,
		InputTokens:   r.PromptEvalCount,
		TotalDuration: time.Duration(r.TotalDuration),
		LoadDuration:  time.Duration(r.LoadDuration),
		EvalDuration:  time.Duration(r.EvalDuration),
	}
}

// Chat sends a chat completion request to Ollama.
func (c *OllamaClient) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	return c.ChatStream(ctx, model, messages, tools, nil)
}

// ChatStream sends a streaming chat request to Ollama.
// If callback is non-nil, token events are streamed to it.
func (c *OllamaClient) ChatStream(ctx context.Context, model string, messages []Message, tools []map[string]any, callback StreamCallback) (*ChatResponse, error) {
	stream := callback != nil

	req := ollamaChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   stream,
		Tools:    tools,
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	validTools := extractToolNames(tools)

	if !stream {
		var wire ollamaWireResponse
		if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		chatResp := wire.toChatResponse()
		applyTextToolCallFallback(chatResp, validTools)
		return chatResp, nil
	}

	var finalWire ollamaWireResponse
	var contentBuilder strings.Builder
	decoder := json.NewDecoder(resp.Body)

	for {
		var chunk ollamaWireResponse
		if err := decoder.Decode(&chunk); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("decode stream chunk: %w", err)
		}

		if chunk.Message.Content != "" {
			contentBuilder.WriteString(chunk.Message.Content)
			callback(StreamEvent{Kind: KindToken, Token: chunk.Message.Content})
		}

		if len(chunk.Message.ToolCalls) > 0 {
			finalWire.Message.ToolCalls = chunk.Message.ToolCalls
		}

		if chunk.Done {
			finalWire = chunk
			finalWire.Message.Content = contentBuilder.String()
			break
		}
	}

	chatResp := finalWire.toChatResponse()
	applyTextToolCallFallback(chatResp, validTools)
	callback(StreamEvent{Kind: KindDone, Response: chatResp})
	return chatResp, nil
}

// applyTextToolCallFallback handles models that emit tool calls as JSON
// text in the message body rather than using the native tool_calls field.
func applyTextToolCallFallback(resp *ChatResponse, validTools []string) {
	if len(resp.Message.ToolCalls) > 0 || resp.Message.Content == "" {
		return
	}
	if parsed := parseTextToolCalls(resp.Message.Content, validTools); len(parsed) > 0 {
		resp.Message.ToolCalls = parsed
		resp.Message.Content = ""
	}
}

// extractToolNames pulls function names out of a tool catalogue, for
// validating text-embedded tool calls against what was actually offered.
func extractToolNames(tools []map[string]any) []string {
	if len(tools) == 0 {
		return nil
	}
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		fn, ok := t["function"].(map[string]any)
		if !ok {
			continue
		}
		name, ok := fn["name"].(string)
		if !ok || name == "" {
			continue
		}
		names = append(names, name)
	}
	return names
}

func isValidToolName(name string, validTools []string) bool {
	if len(validTools) == 0 {
		return true
	}
	for _, v := range validTools {
		if v == name {
			return true
		}
	}
	return false
}

// parseTextToolCalls attempts to extract tool calls from content text.
// Many local models emit tool calls as JSON in the message body rather
// than using the native tool_calls field, and several distinct shapes
// show up in practice:
//   - a single JSON object: {"name": "...", "arguments": {...}}
//   - a JSON array of objects
//   - tagged: <tool_call>{...}</tool_call>
//   - "tool_name {json}" (bare name followed by the arguments object)
//   - concatenated objects with no separator: {...}{...}{...}
//
// When validTools is non-empty, calls naming a tool outside that set are
// dropped rather than surfaced to the pipeline.
func parseTextToolCalls(content string, validTools []string) []ToolCall {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	if strings.Contains(content, "<tool_call>") {
		start := strings.Index(content, "<tool_call>")
		end := strings.Index(content, "</tool_call>")
		if start != -1 && end > start {
			content = strings.TrimSpace(content[start+len("<tool_call>") : end])
		} else if start != -1 {
			content = strings.TrimSpace(content[start+len("<tool_call>"):])
		}
	}

	if calls := parseConcatenatedToolCalls(content, validTools); len(calls) > 0 {
		return calls
	}

	if calls := parseNamedToolCall(content, validTools); len(calls) > 0 {
		return calls
	}

	var arr []struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(content), &arr); err == nil && len(arr) > 0 {
		var result []ToolCall
		for _, c := range arr {
			if c.Name == "" || !isValidToolName(c.Name, validTools) {
				continue
			}
			result = append(result, newToolCall(c.Name, c.Arguments))
		}
		return result
	}

	var single struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(content), &single); err == nil && single.Name != "" && isValidToolName(single.Name, validTools) {
		return []ToolCall{newToolCall(single.Name, single.Arguments)}
	}

	return nil
}

// parseConcatenatedToolCalls scans content for a run of back-to-back JSON
// objects ({"name":...}{"name":...}), stopping at the first byte that
// doesn't start a further object. Any trailing prose is ignored.
func parseConcatenatedToolCalls(content string, validTools []string) []ToolCall {
	if !strings.HasPrefix(content, "{") {
		return nil
	}

	var result []ToolCall
	decoder := json.NewDecoder(strings.NewReader(content))
	for {
		var c struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}
		if err := decoder.Decode(&c); err != nil {
			break
		}
		if c.Name == "" || !isValidToolName(c.Name, validTools) {
			break
		}
		result = append(result, newToolCall(c.Name, c.Arguments))
	}
	if len(result) < 2 {
		return nil
	}
	return result
}

// parseNamedToolCall matches "tool_name {json arguments}", a shape some
// models emit instead of a pure JSON object.
func parseNamedToolCall(content string, validTools []string) []ToolCall {
	brace := strings.IndexByte(content, '{')
	if brace <= 0 {
		return nil
	}
	name := strings.TrimSpace(content[:brace])
	if name == "" || strings.ContainsAny(name, " \t\n") || !isValidToolName(name, validTools) {
		return nil
	}

	decoder := json.NewDecoder(strings.NewReader(content[brace:]))
	var args map[string]any
	if err := decoder.Decode(&args); err != nil {
		return nil
	}
	return []ToolCall{newToolCall(name, args)}
}

func newToolCall(name string, args map[string]any) ToolCall {
	var tc ToolCall
	tc.Function.Name = name
	tc.Function.Arguments = args
	return tc
}

// Ping checks if Ollama is reachable.
func (c *OllamaClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error %d", resp.StatusCode)
	}

	return nil
}

// ListModels returns available models.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	names := make([]string, len(result.Models))
	for i, m := range result.Models {
		names[i] = m.Name
	}
	return names, nil
}
