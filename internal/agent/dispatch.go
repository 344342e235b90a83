package agent

import (
	"context"

	"github.com/nugget/message-agent-host/internal/message"
	"github.com/nugget/message-agent-host/internal/skills"
	"github.com/nugget/message-agent-host/internal/taskmgr"
)

// Handle is the Channel Manager's inbound entry point. It performs
// slash dispatch (synchronous builtin reply, or a background
// content-skill task) or, for ordinary conversation, submits the full
// pipeline as a background task.
func (s *Service) Handle(ctx context.Context, tasks *taskmgr.Manager, msg message.NormalizedMessage) {
	name, args, ok := slashCommand(msg.Text)
	if !ok {
		tasks.Submit(ctx, msg, s.RunPipeline)
		return
	}

	skill, ok := s.skills.UserInvocable(name)
	if !ok {
		// Not a registered command — treat the whole text as
		// ordinary conversation rather than silently dropping it.
		tasks.Submit(ctx, msg, s.RunPipeline)
		return
	}

	switch skill.Source {
	case skills.SourceBuiltin:
		s.dispatchBuiltin(ctx, skill, msg, args)
	case skills.SourceSkillMD:
		tasks.Submit(ctx, msg, func(ctx context.Context, taskID string, msg message.NormalizedMessage) {
			s.runContentSkillCommand(ctx, skill, msg, args)
		})
	}
}

// dispatchBuiltin invokes a builtin skill in-process and replies
// synchronously, bypassing the Task Manager entirely.
func (s *Service) dispatchBuiltin(ctx context.Context, skill *skills.Skill, msg message.NormalizedMessage, args string) {
	ctx = withConversation(ctx, msg.ChannelID, msg.ConversationID)
	text, handled, err := s.skills.Execute(ctx, skill.Name, args)
	if err != nil {
		s.logger.Warn("builtin skill failed", "skill", skill.Name, "error", err)
		return
	}
	if !handled {
		return
	}
	s.sendReply(ctx, msg, text)
}

// runContentSkillCommand implements the content-based-skill branch of
// slash dispatch: a single LLM completion using the skill's
// instructions (with $ARGUMENTS substituted) as the system prompt and
// the raw message text as the user prompt.
func (s *Service) runContentSkillCommand(ctx context.Context, skill *skills.Skill, msg message.NormalizedMessage, args string) {
	system := skills.SubstituteArguments(skill.Instructions, args)
	text, err := s.completion(ctx, system, msg.Text)
	if err != nil {
		s.logger.Warn("content skill completion failed", "skill", skill.Name, "error", err)
		text = "⚠ An error occurred processing your message: " + err.Error()
	}
	s.sendReply(ctx, msg, text)
}

func (s *Service) sendReply(ctx context.Context, msg message.NormalizedMessage, text string) {
	out := message.OutgoingMessage{Text: text, ReplyToMessageID: msg.PlatformMessageID}
	if err := s.channels.Send(ctx, msg.ChannelID, msg.ConversationID, out); err != nil {
		s.logger.Warn("failed to send reply", "channel", msg.ChannelID, "error", err)
	}
}
