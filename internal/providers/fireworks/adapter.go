package fireworks

import (
	"context"
	"net/http"
	"time"

	"github.com/jordanhubbard/councilhub/internal/providers"
	"github.com/jordanhubbard/councilhub/internal/router"
)

const (
	DefaultBaseURL = "https://api.fireworks.ai/inference/v1"

	// Fireworks rejects non-streaming requests asking for more than 4096
	// output tokens, so max_tokens is clamped.
	maxTokensCap = 4096

	// Open-weight reasoning models can take a long time on large outputs.
	requestTimeout = 900 * time.Second
)

// modelMap converts canonical model ids to Fireworks's
// accounts/fireworks/models/<name> format. Unknown ids pass through so
// native Fireworks ids keep working.
var modelMap = map[string]string{
	"fireworks/glm-5":                 "accounts/fireworks/models/glm-5",
	"accounts/fireworks/models/glm-5": "accounts/fireworks/models/glm-5",
}

func resolveModelID(model string) string {
	if mapped, ok := modelMap[model]; ok {
		return mapped
	}
	return model
}

// Adapter implements router.Sender for Fireworks AI.
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

func (a *Adapter) ID() string { return router.ProviderFireworks }

func (a *Adapter) Send(ctx context.Context, model string, req router.Request) (*router.Response, error) {
	capped := req
	if capped.MaxTokens <= 0 || capped.MaxTokens > maxTokensCap {
		capped.MaxTokens = maxTokensCap
	}

	payload := providers.BuildChatPayload(resolveModelID(model), capped, maxTokensCap)
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
