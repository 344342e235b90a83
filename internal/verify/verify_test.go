package verify_test

import (
	"strings"
	"testing"

	"github.com/nugget/message-agent-host/internal/verify"
)

func TestRuleVerifierEmptyResponseIsRedo(t *testing.T) {
	r := verify.NewRuleVerifier()
	res := r.Verify(verify.Request{UserText: "hi", Response: ""})
	if res.Passed || res.Rating != verify.RatingRedo {
		t.Fatalf("res = %+v, want failing REDO", res)
	}
}

func TestRuleVerifierTruncationBoundary(t *testing.T) {
	r := verify.NewRuleVerifier()

	ninetyNine := strings.Repeat("a", 99)
	if res := r.Verify(verify.Request{UserText: "hi", Response: ninetyNine}); !res.Passed {
		t.Fatalf("99-char untermindated response should pass completeness, got %+v", res)
	}

	oneOhOne := strings.Repeat("a", 101)
	if res := r.Verify(verify.Request{UserText: "hi", Response: oneOhOne}); res.Passed {
		t.Fatalf("101-char unterminated response should fail completeness, got %+v", res)
	}
}

func TestRuleVerifierDirectAnswerBoundary(t *testing.T) {
	r := verify.NewRuleVerifier()

	nineChar := strings.Repeat("a", 9)
	if res := r.Verify(verify.Request{UserText: "what time is it?", Response: nineChar}); res.Passed {
		t.Fatalf("9-char response to a question should fail direct-answer, got %+v", res)
	}

	tenChar := strings.Repeat("a", 10)
	if res := r.Verify(verify.Request{UserText: "what time is it?", Response: tenChar}); !res.Passed {
		t.Fatalf("10-char response to a question should pass direct-answer, got %+v", res)
	}
}

func TestRuleVerifierCodeRequestNeedsFencedBlock(t *testing.T) {
	r := verify.NewRuleVerifier()
	res := r.Verify(verify.Request{UserText: "write a function to add two numbers", Response: "Sure, here it is: x plus y."})
	if res.Passed || res.Rating != verify.RatingNeedsFix {
		t.Fatalf("res = %+v, want failing NEEDS_FIX", res)
	}

	ok := r.Verify(verify.Request{UserText: "write a function to add two numbers", Response: "```go\nfunc add(a,b int) int { return a+b }\n```"})
	if !ok.Passed {
		t.Fatalf("fenced code block should satisfy code-quality check, got %+v", ok)
	}
}

func TestShouldVerifySkipsShortGreeting(t *testing.T) {
	cfg := verify.DefaultConfig()
	if verify.ShouldVerify("hello!", strings.Repeat("a", 200), cfg) {
		t.Fatal("short greeting should skip verification regardless of response length")
	}
}

func TestShouldVerifyShortResponseThreshold(t *testing.T) {
	cfg := verify.DefaultConfig()
	cfg.ShortResponseThreshold = 50

	if verify.ShouldVerify("tell me about go", strings.Repeat("a", 49), cfg) {
		t.Fatal("49-char response should skip verification when threshold is 50")
	}
	if !verify.ShouldVerify("tell me about go", strings.Repeat("a", 50), cfg) {
		t.Fatal("50-char response should not skip verification")
	}
}

func TestCompositeReturnsFirstFailure(t *testing.T) {
	c := verify.NewComposite(verify.NewRuleVerifier())
	res := c.Verify(verify.Request{UserText: "hi", Response: ""})
	if res.Passed || res.Rating != verify.RatingRedo {
		t.Fatalf("res = %+v, want failing REDO from rule verifier", res)
	}
}

func TestCompositePassesWhenNoFailures(t *testing.T) {
	c := verify.NewComposite(verify.NewRuleVerifier())
	res := c.Verify(verify.Request{UserText: "hi", Response: "Hello there, how can I help you today?"})
	if !res.Passed || res.Rating != verify.RatingGood {
		t.Fatalf("res = %+v, want passing GOOD", res)
	}
}
