package agent

import (
	"context"
	"fmt"

	"github.com/nugget/message-agent-host/internal/journal"
	"github.com/nugget/message-agent-host/internal/llm"
	"github.com/nugget/message-agent-host/internal/message"
	"github.com/nugget/message-agent-host/internal/skills"
)

// buildToolCatalogue assembles the MCP tool catalog union'd with one
// tool per content-based skill and one per model-invocable builtin
// (e.g. github), each named skill__<name> with a single string
// "arguments" input.
func (s *Service) buildToolCatalogue(ctx context.Context) []map[string]any {
	var out []map[string]any

	if s.mcpMgr != nil {
		mcpTools, err := s.mcpMgr.GetAllTools(ctx)
		if err != nil {
			s.logger.Warn("failed to list MCP tools", "error", err)
		}
		for _, t := range mcpTools {
			schema := t.InputSchema
			if schema == nil {
				schema = map[string]any{"type": "object", "properties": map[string]any{}}
			}
			out = append(out, map[string]any{
				"type": "function",
				"function": map[string]any{
					"name":        t.Name,
					"description": t.Description,
					"parameters":  schema,
				},
			})
		}
	}

	for _, skill := range s.skills.ContentSkills() {
		if skill.DisableModelInvocation {
			continue
		}
		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        skills.ToolName(skill.Name),
				"description": skill.Description,
				"parameters": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"arguments": map[string]any{"type": "string"},
					},
				},
			},
		})
	}

	for _, skill := range s.skills.ModelInvocableBuiltins() {
		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        skills.ToolName(skill.Name),
				"description": skill.Description,
				"parameters": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"arguments": map[string]any{"type": "string"},
					},
				},
			},
		})
	}

	return out
}

// runToolLoop implements §4.3.2: bounded by maxIterations, each
// iteration calls the LLM with the current transcript and tool
// catalogue, dispatching any tool calls and feeding results back as
// "tool" role messages. After maxIterations without resolution, one
// final call is made without tools.
func (s *Service) runToolLoop(ctx context.Context, msg message.NormalizedMessage, taskID string, messages []llm.Message, tools []map[string]any) (string, error) {
	for iteration := 0; iteration < s.maxIterations; iteration++ {
		resp, err := s.llm.Chat(ctx, s.model, messages, tools)
		if err != nil {
			return "", fmt.Errorf("llm call: %w", err)
		}
		if len(resp.Message.ToolCalls) == 0 {
			return resp.Message.Content, nil
		}

		messages = append(messages, llm.Message{Role: "assistant", Content: resp.Message.Content, ToolCalls: resp.Message.ToolCalls})

		for _, tc := range resp.Message.ToolCalls {
			result := s.invokeTool(ctx, msg, taskID, tc)
			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: tc.ID,
			})
		}
	}

	// maxIterations exhausted: one final call with no tools.
	resp, err := s.llm.Chat(ctx, s.model, messages, nil)
	if err != nil {
		return "", fmt.Errorf("final llm call: %w", err)
	}
	return resp.Message.Content, nil
}

// invokeTool dispatches a single tool call: skill__ names run a skill
// completion, everything else is an MCP tool invocation split on the
// first "__". Tool failures are inlined into the result text and never
// abort the loop.
func (s *Service) invokeTool(ctx context.Context, msg message.NormalizedMessage, taskID string, tc llm.ToolCall) string {
	s.journal.Record(msg.ChannelID, msg.ConversationID, taskID, journal.EventToolCallStarted, map[string]any{"name": tc.Function.Name})
	result := s.dispatchTool(ctx, tc)
	s.journal.Record(msg.ChannelID, msg.ConversationID, taskID, journal.EventToolCallCompleted, map[string]any{"name": tc.Function.Name})
	return result
}

func (s *Service) dispatchTool(ctx context.Context, tc llm.ToolCall) string {
	if skillName, ok := skills.SplitToolName(tc.Function.Name); ok {
		skill, ok := s.skills.Get(skillName)
		if !ok {
			return fmt.Sprintf("Skill %s not found", tc.Function.Name)
		}
		argsText, _ := tc.Function.Arguments["arguments"].(string)

		if skill.Source == skills.SourceBuiltin {
			text, handled, err := s.skills.Execute(ctx, skillName, argsText)
			if err != nil {
				return fmt.Sprintf("Tool error: %s", err.Error())
			}
			if !handled {
				return fmt.Sprintf("Skill %s has no bound executor", tc.Function.Name)
			}
			return text
		}

		if skill.Instructions == "" {
			return fmt.Sprintf("Skill %s not found", tc.Function.Name)
		}
		system := skills.SubstituteArguments(skill.Instructions, argsText)
		text, err := s.completion(ctx, system, argsText)
		if err != nil {
			return fmt.Sprintf("Tool error: %s", err.Error())
		}
		return text
	}

	if s.mcpMgr == nil {
		return "Tool error: no MCP servers configured"
	}
	text, err := s.mcpMgr.InvokeTool(ctx, tc.Function.Name, tc.Function.Arguments)
	if err != nil {
		return fmt.Sprintf("Tool error: %s", err.Error())
	}
	return text
}
