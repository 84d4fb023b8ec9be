package xai

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/jordanhubbard/councilhub/internal/providers"
	"github.com/jordanhubbard/councilhub/internal/router"
)

const (
	DefaultBaseURL = "https://api.x.ai/v1"

	defaultMaxTokens = 32768
	requestTimeout   = 900 * time.Second
)

var modelMap = map[string]string{
	"x-ai/grok-4":        "grok-4",
	"x-ai/grok-4-fast":   "grok-4-fast",
	"x-ai/grok-4.1-fast": "grok-4.1-fast",
	"grok-4":             "grok-4",
}

func resolveModelID(model string) string {
	if mapped, ok := modelMap[model]; ok {
		return mapped
	}
	return strings.TrimPrefix(model, "x-ai/")
}

// Adapter implements router.Sender for xAI's Grok models.
type Adapter struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func New(apiKey, baseURL string) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Adapter{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

func (a *Adapter) ID() string { return router.ProviderXAI }

func (a *Adapter) Send(ctx context.Context, model string, req router.Request) (*router.Response, error) {
	payload := providers.BuildChatPayload(resolveModelID(model), req, defaultMaxTokens)
	headers := map[string]string{"Authorization": "Bearer " + a.apiKey}

	body, err := providers.DoRequest(ctx, a.client, a.baseURL+"/chat/completions", payload, headers)
	if err != nil {
		return nil, err
	}

	content, usage, err := providers.ParseChatResponse(body)
	if err != nil {
		return nil, err
	}
	return &router.Response{
		Model:    model,
		Provider: a.ID(),
		Content:  content,
		Usage:    usage,
	}, nil
}

func (a *Adapter) ClassifyError(err error) *router.ClassifiedError {
	return providers.ClassifyStatusError(err)
}
