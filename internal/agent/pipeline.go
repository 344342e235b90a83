package agent

import (
	"context"
	"fmt"

	"github.com/nugget/message-agent-host/internal/historystore"
	"github.com/nugget/message-agent-host/internal/journal"
	"github.com/nugget/message-agent-host/internal/llm"
	"github.com/nugget/message-agent-host/internal/message"
	"github.com/nugget/message-agent-host/internal/taskstore"
	"github.com/nugget/message-agent-host/internal/verify"
)

// RunPipeline implements the full pipeline (§4.3.1, phases a-h). It is
// installed as the taskmgr.Pipeline callback for ordinary conversation
// turns.
func (s *Service) RunPipeline(ctx context.Context, taskID string, msg message.NormalizedMessage) {
	key := convKey(msg.ChannelID, msg.ConversationID)

	// Phase a: append user message to history, under the mutex.
	release := s.mutex.Acquire(key)
	s.journal.Record(msg.ChannelID, msg.ConversationID, taskID, journal.EventPipelineStarted, nil)
	_, err := s.history.Append(msg.ChannelID, msg.ConversationID, "user", msg.Text, historystore.Entry{
		SenderID:          msg.SenderID,
		PlatformMessageID: msg.PlatformMessageID,
		TaskID:            taskID,
	})
	release.Unlock()
	if err != nil {
		s.failTask(ctx, taskID, msg, fmt.Errorf("append user message: %w", err))
		return
	}
	s.journal.Record(msg.ChannelID, msg.ConversationID, taskID, journal.EventHistoryAppended, map[string]any{"role": "user"})
	if err := s.tasks.UpdatePhase(taskID, taskstore.PhaseHistoryWritten, "", ""); err != nil {
		s.logger.Warn("update phase failed", "task", taskID, "error", err)
	}

	// Phase b: read full history snapshot (under the mutex again, per
	// the specification — reads and writes are bracketed, LLM calls
	// are not).
	release = s.mutex.Acquire(key)
	entries, err := s.history.GetMessages(msg.ChannelID, msg.ConversationID, 0)
	release.Unlock()
	if err != nil {
		s.failTask(ctx, taskID, msg, fmt.Errorf("read history: %w", err))
		return
	}

	// Phase c: assemble messages and tool catalogue.
	messages := s.buildMessages(entries)
	tools := s.buildToolCatalogue(ctx)

	s.journal.Record(msg.ChannelID, msg.ConversationID, taskID, journal.EventLLMCallStarted, nil)
	if err := s.tasks.UpdatePhase(taskID, taskstore.PhaseLLMCalling, "", ""); err != nil {
		s.logger.Warn("update phase failed", "task", taskID, "error", err)
	}

	// Phase d: tool-use loop.
	responseText, err := s.runToolLoop(ctx, msg, taskID, messages, tools)
	if err != nil {
		s.failTask(ctx, taskID, msg, fmt.Errorf("tool loop: %w", err))
		return
	}
	s.journal.Record(msg.ChannelID, msg.ConversationID, taskID, journal.EventLLMCallCompleted, nil)

	// Phase e: verification loop.
	if verify.ShouldVerify(msg.Text, responseText, s.verifyCfg) {
		if err := s.tasks.UpdatePhase(taskID, taskstore.PhaseVerifying, responseText, ""); err != nil {
			s.logger.Warn("update phase failed", "task", taskID, "error", err)
		}
		responseText = s.runVerification(ctx, msg, taskID, responseText)
	}

	// Phase f: append assistant message to history.
	release = s.mutex.Acquire(key)
	_, err = s.history.Append(msg.ChannelID, msg.ConversationID, "assistant", responseText, historystore.Entry{TaskID: taskID})
	release.Unlock()
	if err != nil {
		s.failTask(ctx, taskID, msg, fmt.Errorf("append assistant message: %w", err))
		return
	}
	s.journal.Record(msg.ChannelID, msg.ConversationID, taskID, journal.EventHistoryAppended, map[string]any{"role": "assistant"})
	if err := s.tasks.UpdatePhase(taskID, taskstore.PhaseResponding, responseText, ""); err != nil {
		s.logger.Warn("update phase failed", "task", taskID, "error", err)
	}

	// Phase g: record for /retry.
	s.setLastResponse(msg.ChannelID, msg.ConversationID, responseText)

	// Phase h: send response.
	out := message.OutgoingMessage{Text: responseText, ReplyToMessageID: msg.PlatformMessageID}
	if err := s.channels.Send(ctx, msg.ChannelID, msg.ConversationID, out); err != nil {
		s.logger.Warn("send response failed", "channel", msg.ChannelID, "error", err)
	}
	s.journal.Record(msg.ChannelID, msg.ConversationID, taskID, journal.EventResponseSent, nil)

	if err := s.tasks.Complete(taskID); err != nil {
		s.logger.Warn("complete task failed", "task", taskID, "error", err)
	}
	s.journal.Record(msg.ChannelID, msg.ConversationID, taskID, journal.EventTaskCompleted, nil)
}

// failTask records the failure, persists it, and delivers the
// user-visible error reply.
func (s *Service) failTask(ctx context.Context, taskID string, msg message.NormalizedMessage, cause error) {
	s.logger.Error("pipeline failed", "task", taskID, "error", cause)
	if err := s.tasks.Fail(taskID, cause.Error()); err != nil {
		s.logger.Warn("failed to persist task failure", "task", taskID, "error", err)
	}
	s.journal.Record(msg.ChannelID, msg.ConversationID, taskID, journal.EventTaskFailed, map[string]any{"error": cause.Error()})

	out := message.OutgoingMessage{
		Text:             fmt.Sprintf("⚠ An error occurred processing your message: %s", cause.Error()),
		ReplyToMessageID: msg.PlatformMessageID,
	}
	if err := s.channels.Send(ctx, msg.ChannelID, msg.ConversationID, out); err != nil {
		s.logger.Warn("failed to send error reply", "channel", msg.ChannelID, "error", err)
	}
}

// buildMessages converts a history snapshot into the LLM message
// sequence, with the persona system prompt leading.
func (s *Service) buildMessages(entries []historystore.Entry) []llm.Message {
	messages := make([]llm.Message, 0, len(entries)+1)
	messages = append(messages, llm.Message{Role: "system", Content: s.systemPrompt()})
	for _, e := range entries {
		m := llm.Message{Role: e.Role, Content: e.Content}
		if e.Role == "tool" {
			m.ToolCallID = e.ToolCallID
		}
		messages = append(messages, m)
	}
	return messages
}

// completion performs a single system+user LLM call with no tools,
// used by content-based slash commands.
func (s *Service) completion(ctx context.Context, system, userText string) (string, error) {
	resp, err := s.llm.Chat(ctx, s.model, []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: userText},
	}, nil)
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}
