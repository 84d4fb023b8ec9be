package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jordanhubbard/councilhub/internal/router"
)

// DefaultTemperature is forwarded when the request carries none. Adapters for
// models that only accept a fixed temperature override it.
const DefaultTemperature = 0.7

// BuildChatPayload assembles an OpenAI-style chat-completions payload. The
// same shape serves OpenRouter, Cerebras, Fireworks, Moonshot and xAI.
func BuildChatPayload(model string, req router.Request, defaultMaxTokens int) map[string]any {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	return map[string]any{
		"model":       model,
		"messages":    req.Messages,
		"max_tokens":  maxTokens,
		"temperature": temperature,
	}
}

type chatCompletion struct {
	Choices []struct {
		Message struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"message"`
	} `json:"choices"`
	Usage router.Usage `json:"usage"`
}

// ParseChatResponse extracts the first choice's content and the usage block
// from an OpenAI-style chat-completions body. Thinking models (Kimi K2.5) may
// put their output in reasoning_content instead of content.
func ParseChatResponse(body []byte) (content string, usage router.Usage, err error) {
	var parsed chatCompletion
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", router.Usage{}, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", router.Usage{}, fmt.Errorf("response contained no choices")
	}
	msg := parsed.Choices[0].Message
	content = msg.Content
	if content == "" {
		content = msg.ReasoningContent
	}
	return content, parsed.Usage, nil
}

// ClassifyStatusError buckets an adapter error by its HTTP status. Shared by
// every adapter's ClassifyError.
func ClassifyStatusError(err error) *router.ClassifiedError {
	var se *StatusError
	if !errors.As(err, &se) {
		return &router.ClassifiedError{Class: router.ErrFatal, Err: err}
	}
	switch {
	case se.StatusCode == 429:
		return &router.ClassifiedError{Class: router.ErrRateLimited, Err: err, RetryAfterSecs: se.RetryAfterSecs}
	case se.StatusCode >= 500:
		return &router.ClassifiedError{Class: router.ErrTransient, Err: err}
	case se.StatusCode == 400 && looksLikeContextOverflow(se.Body):
		return &router.ClassifiedError{Class: router.ErrContextOverflow, Err: err}
	default:
		return &router.ClassifiedError{Class: router.ErrFatal, Err: err}
	}
}

func looksLikeContextOverflow(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range []string{"context_length_exceeded", "maximum context length", "context window"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
