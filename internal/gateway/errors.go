package gateway

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation indicates a malformed request that was never sent.
	ErrValidation = errors.New("gateway: invalid request")
	// ErrAuth indicates the API key was rejected.
	ErrAuth = errors.New("gateway: unauthorized (API key missing or invalid)")
	// ErrRateLimited indicates the upstream rate limit was hit.
	ErrRateLimited = errors.New("gateway: rate limited")
	// ErrContextLength indicates the request exceeded the model's context window.
	ErrContextLength = errors.New("gateway: context length exceeded")
	// ErrTimeout indicates the per-call deadline elapsed.
	ErrTimeout = errors.New("gateway: timeout")
	// ErrUpstream covers every other upstream failure.
	ErrUpstream = errors.New("gateway: upstream error")
)

// APIError carries upstream detail for a failed call.
type APIError struct {
	Kind    error
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *APIError) Unwrap() error { return e.Kind }

// KindOf returns the short error kind recorded in call logs.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrContextLength):
		return "context_length"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "upstream"
	}
}

var contextPhrases = []string{
	"context length",
	"context_length",
	"context window",
	"maximum context",
	"too many tokens",
	"too long",
	"reduce the length",
}

func isContextOverflow(msg string) bool {
	msg = strings.ToLower(msg)
	for _, p := range contextPhrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
