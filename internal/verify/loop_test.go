package verify_test

import (
	"testing"

	"github.com/nugget/message-agent-host/internal/verify"
)

// alwaysFailVerifier never passes, to exercise the maxRetries bound.
type alwaysFailVerifier struct{ calls int }

func (v *alwaysFailVerifier) Verify(req verify.Request) verify.Result {
	v.calls++
	return verify.Result{Passed: false, Rating: verify.RatingNeedsFix, Feedback: "nope", Confidence: 1.0}
}

func TestRunBoundsRegenerationsByMaxRetries(t *testing.T) {
	cfg := verify.DefaultConfig()
	cfg.MaxRetries = 3

	fail := &alwaysFailVerifier{}
	composite := verify.NewComposite(fail)

	regenCalls := 0
	regenerate := func(mode string, feedback []string, current string) (string, error) {
		regenCalls++
		return current + "!", nil
	}

	final, attempts, err := verify.Run(cfg, composite, "hi", "initial", regenerate)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(attempts) != cfg.MaxRetries {
		t.Fatalf("attempts = %d, want %d", len(attempts), cfg.MaxRetries)
	}
	if regenCalls != cfg.MaxRetries {
		t.Fatalf("regenCalls = %d, want %d", regenCalls, cfg.MaxRetries)
	}
	if final != "initial!!!" {
		t.Fatalf("final = %q, want three regenerations applied", final)
	}
}

func TestRunReturnsOnFirstPass(t *testing.T) {
	cfg := verify.DefaultConfig()
	composite := verify.NewComposite(verify.NewRuleVerifier())

	regenCalls := 0
	regenerate := func(mode string, feedback []string, current string) (string, error) {
		regenCalls++
		return current, nil
	}

	final, attempts, err := verify.Run(cfg, composite, "hi", "A perfectly fine response.", regenerate)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(attempts) != 1 || !attempts[0].Passed {
		t.Fatalf("attempts = %+v, want a single passing attempt", attempts)
	}
	if regenCalls != 0 {
		t.Fatalf("regenCalls = %d, want 0 when the first attempt passes", regenCalls)
	}
	if final != "A perfectly fine response." {
		t.Fatalf("final = %q, want unchanged response", final)
	}
}
