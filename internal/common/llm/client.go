// Package llm is the client for the external reasoning/generation service.
// Every call is a single request/response exchange: a system instruction, a
// user payload, optionally prior conversation turns, returning free text or a
// declared JSON object.
package llm

import (
	"context"
	"time"
)

// Role of a conversation turn passed as history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one prior conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes one call to the model service.
type Request struct {
	Model       string
	System      string
	User        string
	History     []Message
	MaxTokens   int
	Temperature float64
	// JSONMode asks the service to return a single JSON object. Responses
	// are still treated as untrusted; callers isolate and validate them.
	JSONMode bool
	Timeout  time.Duration
}

// Client is the minimal surface the drafting services depend on. The
// production implementation is OpenAI-backed; tests substitute a mock.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}
