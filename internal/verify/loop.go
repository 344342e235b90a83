package verify

import "fmt"

// RegenerateFunc produces a fresh candidate response given the current
// system prompt and (for NEEDS_FIX) an extended transcript turn. The
// pipeline supplies this since only it owns the LLM call plumbing and
// message history.
//
// mode is "redo" (rebuild from scratch with augmented system prompt) or
// "fix" (extend the transcript with a synthetic correction turn).
type RegenerateFunc func(mode string, feedback []string, current string) (string, error)

// Run executes the verification loop: up to cfg.MaxRetries attempts of
// composite.Verify, regenerating via regenerate between attempts. After
// exhausting retries it returns the last candidate response.
func Run(cfg Config, composite *Composite, userText, initial string, regenerate RegenerateFunc) (string, []Result, error) {
	current := initial
	var feedback []string
	var attempts []Result

	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		res := composite.Verify(Request{UserText: userText, Response: current, Attempt: attempt})
		attempts = append(attempts, res)

		if res.Passed {
			return current, attempts, nil
		}

		if res.Feedback != "" {
			feedback = append(feedback, res.Feedback)
		}

		mode := "fix"
		if res.Rating == RatingRedo {
			mode = "redo"
		}

		next, err := regenerate(mode, feedback, current)
		if err != nil {
			return current, attempts, fmt.Errorf("regenerate attempt %d: %w", attempt, err)
		}
		current = next
	}

	return current, attempts, nil
}
