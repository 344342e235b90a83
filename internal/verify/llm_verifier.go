package verify

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"time"

	"github.com/nugget/message-agent-host/internal/llm"
)

const verifierCallTimeout = 30 * time.Second

const llmVerifierSystemPrompt = `You are a quality reviewer for an AI assistant's response. ` +
	`Given the user's request and the assistant's response, rate it and respond with ` +
	`ONLY a JSON object of the form {"rating": "GOOD|NEEDS_FIX|REDO", "feedback": "...", "confidence": 0.0-1.0}. ` +
	`Use GOOD when the response is correct and complete, NEEDS_FIX when it needs a ` +
	`small revision, REDO when it must be regenerated from scratch.`

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

type llmRatingPayload struct {
	Rating     string  `json:"rating"`
	Feedback   string  `json:"feedback"`
	Confidence float64 `json:"confidence"`
}

// LLMVerifier asks a (possibly distinct) LLM to rate the response.
// Any parsing or transport failure returns a neutral passing result so
// verification never blocks delivery.
type LLMVerifier struct {
	client    llm.Client
	model     string
	threshold float64
	logger    *slog.Logger
}

// NewLLMVerifier creates an LLM-backed verifier. threshold is the
// minimum confidence a GOOD rating must carry to pass.
func NewLLMVerifier(client llm.Client, model string, threshold float64, logger *slog.Logger) *LLMVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMVerifier{client: client, model: model, threshold: threshold, logger: logger.With("component", "llm_verifier")}
}

func (v *LLMVerifier) Verify(req Request) Result {
	neutral := Result{Passed: true, Confidence: 0.5}

	ctx, cancel := context.WithTimeout(context.Background(), verifierCallTimeout)
	defer cancel()

	messages := []llm.Message{
		{Role: "system", Content: llmVerifierSystemPrompt},
		{Role: "user", Content: "User request:\n" + req.UserText + "\n\nAssistant response:\n" + req.Response},
	}

	resp, err := v.client.Chat(ctx, v.model, messages, nil)
	if err != nil {
		v.logger.Warn("llm verifier call failed, passing neutrally", "error", err)
		return neutral
	}

	match := jsonObjectPattern.FindString(resp.Message.Content)
	if match == "" {
		v.logger.Warn("llm verifier returned no JSON object, passing neutrally")
		return neutral
	}

	var payload llmRatingPayload
	if err := json.Unmarshal([]byte(match), &payload); err != nil {
		v.logger.Warn("llm verifier JSON unparseable, passing neutrally", "error", err)
		return neutral
	}

	confidence := payload.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	rating := Rating(payload.Rating)
	passed := rating == RatingGood && confidence >= v.threshold

	return Result{
		Passed:     passed,
		Rating:     rating,
		Feedback:   payload.Feedback,
		Confidence: confidence,
	}
}
