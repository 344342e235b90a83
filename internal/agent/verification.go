package agent

import (
	"context"
	"fmt"

	"github.com/nugget/message-agent-host/internal/journal"
	"github.com/nugget/message-agent-host/internal/llm"
	"github.com/nugget/message-agent-host/internal/message"
	"github.com/nugget/message-agent-host/internal/verify"
)

// runVerification drives the verification loop (§4.3.3) over an
// initial response, regenerating via a fresh LLM call (mode "redo") or
// an extended transcript turn (mode "fix") between attempts, and
// records a verification_result journal event per attempt.
func (s *Service) runVerification(ctx context.Context, msg message.NormalizedMessage, taskID, initial string) string {
	s.journal.Record(msg.ChannelID, msg.ConversationID, taskID, journal.EventVerificationStarted, nil)

	regenerate := func(mode string, feedback []string, current string) (string, error) {
		system := s.systemPrompt()
		var prompt string
		if mode == "redo" {
			prompt = fmt.Sprintf("The user asked:\n%s\n\nProduce a fresh response from scratch.", msg.Text)
		} else {
			prompt = fmt.Sprintf(
				"The user asked:\n%s\n\nYour previous response was:\n%s\n\nRevise it to address this feedback:\n%s",
				msg.Text, current, lastOf(feedback),
			)
		}
		resp, err := s.llm.Chat(ctx, s.model, []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		}, nil)
		if err != nil {
			return current, err
		}
		return resp.Message.Content, nil
	}

	final, attempts, err := verify.Run(s.verifyCfg, s.verifier, msg.Text, initial, regenerate)
	if err != nil {
		s.logger.Warn("verification regeneration failed, delivering last candidate", "task", taskID, "error", err)
	}

	for _, a := range attempts {
		s.journal.Record(msg.ChannelID, msg.ConversationID, taskID, journal.EventVerificationResult, map[string]any{
			"rating":     string(a.Rating),
			"passed":     a.Passed,
			"confidence": a.Confidence,
		})
	}

	return final
}

func lastOf(feedback []string) string {
	if len(feedback) == 0 {
		return ""
	}
	return feedback[len(feedback)-1]
}
