package verify

import (
	"regexp"
	"strings"
)

// RuleVerifier applies the fixed completeness/code-quality/direct-answer
// checks from spec §4.3.3. Each sub-check fails on first hit with
// confidence 1.0.
type RuleVerifier struct{}

func NewRuleVerifier() *RuleVerifier { return &RuleVerifier{} }

var (
	apologyPattern   = regexp.MustCompile(`(?i)^(i'm sorry|i apologize|i cannot|i can't|unfortunately|as an ai)`)
	terminatorChars  = ".!?\n`\")]"
	codeKeywordRegex = regexp.MustCompile(`(?i)\b(write|create|implement|code|function|class|script|program)\b`)
	fencedBlockRegex = regexp.MustCompile("```")
)

func (RuleVerifier) Verify(req Request) Result {
	if res, failed := checkCompleteness(req.Response); failed {
		return res
	}
	if res, failed := checkCodeQuality(req.UserText, req.Response); failed {
		return res
	}
	if res, failed := checkDirectAnswer(req.UserText, req.Response); failed {
		return res
	}
	return Result{Passed: true, Rating: RatingGood, Confidence: 1.0}
}

func checkCompleteness(response string) (Result, bool) {
	if response == "" {
		return Result{Passed: false, Rating: RatingRedo, Feedback: "response was empty", Confidence: 1.0}, true
	}

	trimmed := strings.TrimSpace(response)
	if apologyPattern.MatchString(trimmed) {
		return Result{Passed: false, Rating: RatingNeedsFix, Feedback: "response reads as an apology or refusal", Confidence: 1.0}, true
	}

	if len(trimmed) > 100 && !strings.ContainsAny(trimmed[len(trimmed)-1:], terminatorChars) {
		return Result{Passed: false, Rating: RatingNeedsFix, Feedback: "response appears truncated (no terminating punctuation)", Confidence: 1.0}, true
	}

	return Result{}, false
}

func checkCodeQuality(userText, response string) (Result, bool) {
	if codeKeywordRegex.MatchString(userText) && !fencedBlockRegex.MatchString(response) {
		return Result{Passed: false, Rating: RatingNeedsFix, Feedback: "request asked for code but response has no fenced code block", Confidence: 1.0}, true
	}
	return Result{}, false
}

func checkDirectAnswer(userText, response string) (Result, bool) {
	trimmedUser := strings.TrimSpace(userText)
	if strings.HasSuffix(trimmedUser, "?") && len(strings.TrimSpace(response)) < 10 {
		return Result{Passed: false, Rating: RatingNeedsFix, Feedback: "response is too short to answer the question asked", Confidence: 1.0}, true
	}
	return Result{}, false
}
