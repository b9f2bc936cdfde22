package llm

import (
	"errors"
	"strings"
)

// Error taxonomy for the LLM boundary. Everything raised below the guardrail
// layer is one of these, so the router can translate failures into a small
// fixed set of user-facing strings without leaking provider detail.

// ConfigError means the client cannot be constructed at all, typically a
// missing API key. Fatal: surfaced once at startup or on first call.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "llm config error: " + e.Reason }

// BlockedError is a content-safety refusal from the provider.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string { return "blocked: " + e.Reason }

// RateLimitedError is returned when the provider answers 429.
type RateLimitedError struct {
	Detail string
}

func (e *RateLimitedError) Error() string { return "rate limited (429): " + e.Detail }

// UnavailableError is a transient failure, including the app-level deadline
// ("app_timeout") enforced by Caller.
type UnavailableError struct {
	Reason string
}

func (e *UnavailableError) Error() string { return "unavailable: " + e.Reason }

var (
	// ErrEmptyResponse: the provider returned no usable text.
	ErrEmptyResponse = errors.New("empty_response")
	// ErrBadSchema: the provider returned text that is not the intent schema.
	ErrBadSchema = errors.New("bad_schema")
	// ErrNoRuleMatch: the rule-based matcher found nothing.
	ErrNoRuleMatch = errors.New("no rule matched")
)

var retryableSignatures = []string{"timeout", "429", "rate", "unavailable"}

// retryable reports whether the error message carries one of the transient
// signatures worth retrying. Matching on the message keeps this working for
// wrapped provider errors we do not control.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	for _, sig := range retryableSignatures {
		if strings.Contains(s, sig) {
			return true
		}
	}
	return false
}
