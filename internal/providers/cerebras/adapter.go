package cerebras

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jordanhubbard/councilhub/internal/providers"
	"github.com/jordanhubbard/councilhub/internal/router"
)

const (
	DefaultBaseURL = "https://api.cerebras.ai/v1"

	defaultMaxTokens = 4096
	requestTimeout   = 120 * time.Second
)

// Adapter implements router.Sender for Cerebras inference.
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

func (a *Adapter) ID() string { return router.ProviderCerebras }

func (a *Adapter) Send(ctx context.Context, model string, req router.Request) (*router.Response, error) {
	payload := providers.BuildChatPayload(model, req, defaultMaxTokens)
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

// ListModels fetches Cerebras's model catalog.
func (a *Adapter) ListModels(ctx context.Context) ([]map[string]any, error) {
	headers := map[string]string{"Authorization": "Bearer " + a.apiKey}
	body, err := providers.DoGet(ctx, a.client, a.baseURL+"/models", headers)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse models response: %w", err)
	}
	return parsed.Data, nil
}
