// Package verify implements the post-response verification loop: rule
// based checks, an optional LLM-based reviewer, and the composite that
// runs sub-verifiers in order and returns the first failure.
package verify

import (
	"regexp"
	"strings"
)

// Rating is a verifier's judgment of a response.
type Rating string

const (
	RatingGood     Rating = "GOOD"
	RatingNeedsFix Rating = "NEEDS_FIX"
	RatingRedo     Rating = "REDO"
)

// Result is the outcome of one verifier invocation.
type Result struct {
	Passed     bool
	Rating     Rating
	Feedback   string
	Confidence float64
}

// Request bundles what a verifier needs to judge a response.
type Request struct {
	UserText string
	Response string
	History  []string // rendered transcript, for LLM verifiers with context
	Attempt  int
}

// Verifier judges one candidate response.
type Verifier interface {
	Verify(req Request) Result
}

// Config controls the verification loop, mirroring the "verification"
// section of the top-level configuration schema.
type Config struct {
	Enabled                bool
	MaxRetries             int
	ConfidenceThreshold    float64
	SkipForShortResponses  bool
	ShortResponseThreshold int
}

// DefaultConfig matches spec §6's documented defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:                true,
		MaxRetries:             3,
		ConfidenceThreshold:    0.7,
		SkipForShortResponses:  true,
		ShortResponseThreshold: 50,
	}
}

var shortGreeting = regexp.MustCompile(`(?i)^(hi|hello|hey|thanks|thank you|ok|bye)[!.]?$`)

// ShouldVerify implements the shouldVerify predicate: verification is
// skipped for short responses (when configured) and for short-greeting
// user turns, regardless of configuration.
func ShouldVerify(userText, response string, cfg Config) bool {
	if !cfg.Enabled {
		return false
	}
	if cfg.SkipForShortResponses && len(response) < cfg.ShortResponseThreshold {
		return false
	}
	if shortGreeting.MatchString(strings.TrimSpace(userText)) {
		return false
	}
	return true
}

// Composite evaluates sub-verifiers in order and returns the first
// failure. Absence of failure yields a passing GOOD result.
type Composite struct {
	verifiers []Verifier
}

// NewComposite builds a composite over the given verifiers, evaluated
// in the given order.
func NewComposite(verifiers ...Verifier) *Composite {
	return &Composite{verifiers: verifiers}
}

func (c *Composite) Verify(req Request) Result {
	for _, v := range c.verifiers {
		res := v.Verify(req)
		if !res.Passed {
			return res
		}
	}
	return Result{Passed: true, Rating: RatingGood, Confidence: 1.0}
}
