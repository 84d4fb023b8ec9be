package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jordanhubbard/councilhub/internal/providers"
	"github.com/jordanhubbard/councilhub/internal/router"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	defaultMaxTokens = 32768
	requestTimeout   = 900 * time.Second
)

// modelMap converts canonical model ids to Gemini API model names.
var modelMap = map[string]string{
	"google/gemini-3-flash":         "gemini-2.0-flash",
	"google/gemini-3-flash-preview": "gemini-2.0-flash",
	"google/gemini-3-pro-preview":   "gemini-2.0-flash",
	"google/gemini-3.1-pro-preview": "gemini-2.0-flash",
	"google/gemini-2.0-flash":       "gemini-2.0-flash",
}

func resolveModelID(model string) string {
	if mapped, ok := modelMap[model]; ok {
		return mapped
	}
	return strings.TrimPrefix(model, "google/")
}

// Adapter implements router.Sender against Gemini's native generateContent
// API. Chat roles are converted: assistant becomes model, and the first
// system message becomes the systemInstruction block.
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

func (a *Adapter) ID() string { return router.ProviderGemini }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

func convertMessages(messages []router.Message) []geminiContent {
	contents := make([]geminiContent, 0, len(messages))
	for _, msg := range messages {
		role := msg.Role
		switch role {
		case "assistant":
			role = "model"
		case "system":
			continue
		case "":
			role = "user"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}
	return contents
}

func (a *Adapter) Send(ctx context.Context, model string, req router.Request) (*router.Response, error) {
	geminiModel := resolveModelID(model)

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := providers.DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	payload := map[string]any{
		"contents": convertMessages(req.Messages),
		"generationConfig": map[string]any{
			"maxOutputTokens": maxTokens,
			"temperature":     temperature,
		},
	}
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			payload["systemInstruction"] = map[string]any{
				"parts": []geminiPart{{Text: msg.Content}},
			}
			break
		}
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		a.baseURL, geminiModel, url.QueryEscape(a.apiKey))

	body, err := providers.DoRequest(ctx, a.client, endpoint, payload, nil)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Candidates []struct {
			Content struct {
				Parts []geminiPart `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
		UsageMetadata struct {
			PromptTokenCount     int `json:"promptTokenCount"`
			CandidatesTokenCount int `json:"candidatesTokenCount"`
			TotalTokenCount      int `json:"totalTokenCount"`
		} `json:"usageMetadata"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(parsed.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates in response")
	}

	var text strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	return &router.Response{
		Model:    model,
		Provider: a.ID(),
		Content:  text.String(),
		Usage: router.Usage{
			PromptTokens:     parsed.UsageMetadata.PromptTokenCount,
			CompletionTokens: parsed.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      parsed.UsageMetadata.TotalTokenCount,
		},
	}, nil
}

func (a *Adapter) ClassifyError(err error) *router.ClassifiedError {
	return providers.ClassifyStatusError(err)
}
