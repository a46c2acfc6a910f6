package adapter

import (
	"context"
	"errors"
	"fmt"
)

// PlanGeneratorAdapter is the port for the external LLM that writes study
// plans. Implementations own authentication and transport; they return the
// assistant text with a single optional surrounding code fence already
// stripped. Parsing the text belongs to the caller.
type PlanGeneratorAdapter interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Message is a single chat turn in the wire shape both providers accept.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ErrUpstreamTimeout marks a generator call that exceeded its per-call budget.
var ErrUpstreamTimeout = errors.New("upstream call timed out")

// ErrEmptyContent marks a 2xx response whose content field was missing or
// empty. Deterministic, not retried.
var ErrEmptyContent = errors.New("upstream response has no content")

// AuthError marks a failed token issuance (bad credentials or identity
// provider rejection).
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("generator auth: %v", e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// UpstreamError marks a non-2xx response from the generator service.
// Body is bounded at capture time.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream http %d: %s", e.StatusCode, e.Body)
}
