package moonshot

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/jordanhubbard/councilhub/internal/providers"
	"github.com/jordanhubbard/councilhub/internal/router"
)

const (
	DefaultBaseURL = "https://api.moonshot.ai/v1"

	defaultMaxTokens = 32768
	requestTimeout   = 900 * time.Second
)

var modelMap = map[string]string{
	"moonshot/kimi-k2.5": "kimi-k2.5",
	"kimi-k2.5":          "kimi-k2.5",
}

func resolveModelID(model string) string {
	if mapped, ok := modelMap[model]; ok {
		return mapped
	}
	return strings.TrimPrefix(model, "moonshot/")
}

// Adapter implements router.Sender for Moonshot's Kimi models.
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

func (a *Adapter) ID() string { return router.ProviderMoonshot }

func (a *Adapter) Send(ctx context.Context, model string, req router.Request) (*router.Response, error) {
	moonshotModel := resolveModelID(model)

	// Kimi K2.5 only accepts temperature=1.
	if strings.Contains(moonshotModel, "k2.5") {
		one := 1.0
		req.Temperature = &one
	}

	payload := providers.BuildChatPayload(moonshotModel, req, defaultMaxTokens)
	headers := map[string]string{"Authorization": "Bearer " + a.apiKey}

	body, err := providers.DoRequest(ctx, a.client, a.baseURL+"/chat/completions", payload, headers)
	if err != nil {
		return nil, err
	}

	// K2.5 is a thinking model: ParseChatResponse falls back to
	// reasoning_content when content is empty.
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
