package router

import "context"

// Request is a provider-agnostic chat envelope. Provider adapters translate
// this into provider-specific API calls.
type Request struct {
	// Chat-style messages (OpenAI-ish envelope). Provider adapters map roles
	// and system messages to their native shapes.
	Messages []Message `json:"messages"`

	// MaxTokens caps the completion length. Zero means the adapter default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature, when set, is forwarded to the provider. Some adapters
	// override it for specific models.
	Temperature *float64 `json:"temperature,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage is the token accounting a provider reports for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the normalized result of one provider call.
type Response struct {
	// Model is the id the provider was actually asked for (after any
	// fallback remapping).
	Model string `json:"model"`

	// Provider is the adapter tag that produced the response, e.g.
	// "openrouter", "anthropic-oauth".
	Provider string `json:"provider"`

	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// ErrorClass buckets provider failures for logging and health tracking.
type ErrorClass string

const (
	ErrTransient       ErrorClass = "transient"
	ErrRateLimited     ErrorClass = "rate_limited"
	ErrFatal           ErrorClass = "fatal"
	ErrContextOverflow ErrorClass = "context_overflow"
)

// ClassifiedError wraps a provider error with its class.
type ClassifiedError struct {
	Class          ErrorClass
	Err            error
	RetryAfterSecs int
}

func (e *ClassifiedError) Error() string { return string(e.Class) + ": " + e.Err.Error() }

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Sender is the contract every provider adapter implements.
type Sender interface {
	// ID returns the adapter's provider tag.
	ID() string

	// Send dispatches one chat request for the given canonical model id.
	Send(ctx context.Context, model string, req Request) (*Response, error)

	// ClassifyError buckets an error returned by Send.
	ClassifyError(err error) *ClassifiedError
}
