package council

import (
	"context"
	"strings"

	"github.com/jordanhubbard/councilhub/internal/router"
)

const fallbackTitle = "New Conversation"

// GenerateTitle summarizes the first user message of a conversation into a
// short title using a fast model. Any failure falls back to a generic title.
func (e *Engine) GenerateTitle(ctx context.Context, userQuery string) string {
	req := router.Request{
		Messages:  []router.Message{{Role: "user", Content: titlePrompt(userQuery)}},
		MaxTokens: 50,
	}

	resp, err := e.dispatcher.Dispatch(ctx, e.titleModel, req)
	if err != nil || resp == nil {
		return fallbackTitle
	}

	title := strings.TrimSpace(resp.Content)
	title = strings.Trim(title, `"'`)
	if title == "" {
		return fallbackTitle
	}
	if runes := []rune(title); len(runes) > 50 {
		title = string(runes[:47]) + "..."
	}
	return title
}
