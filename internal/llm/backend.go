// Package llm routes text-generation requests to interchangeable backends and
// handles refusal detection with cross-backend fallback.
package llm

import (
	"context"
	"fmt"
)

// Message is one chat message sent to a backend.
type Message struct {
	Role    string // "system", "user", or "assistant"
	Content string
}

// Request carries the generation parameters for one backend call.
type Request struct {
	Messages    []Message
	Model       string
	Temperature float64
	MaxTokens   int
}

// Backend is the uniform text-generation capability. Vendor-specific request
// and response shaping lives entirely behind this boundary.
type Backend interface {
	Name() string
	IsAvailable() bool
	Generate(ctx context.Context, req Request) (string, error)
}

// UpstreamError is a transport-level backend failure: network error, non-2xx
// status, or malformed response envelope. The gateway does not retry these;
// recovery policy belongs to the caller.
type UpstreamError struct {
	Backend string
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("backend %s: %s", e.Backend, truncate(e.Message, 300))
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// upstreamErr builds an UpstreamError with a truncated diagnostic message.
func upstreamErr(backend string, err error, format string, a ...any) *UpstreamError {
	return &UpstreamError{
		Backend: backend,
		Message: fmt.Sprintf(format, a...),
		Err:     err,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
