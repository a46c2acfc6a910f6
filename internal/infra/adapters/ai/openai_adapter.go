// File: internal/infra/adapters/ai/openai_adapter.go
package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"telegram-study-planner/internal/domain"
	"telegram-study-planner/internal/domain/ports/adapter"
	"telegram-study-planner/internal/infra/metrics"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.PlanGeneratorAdapter = (*OpenAIAdapter)(nil)

// OpenAIAdapter implements adapter.PlanGeneratorAdapter against any
// OpenAI-compatible gateway. Used as the fallback provider when no GigaChat
// authorization key is configured.
type OpenAIAdapter struct {
	apiKey      string
	base        string
	model       string
	temperature float64
	client      *http.Client
}

func NewOpenAIAdapter(apiKey, model, base string, temperature float64) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, domain.ErrMissingCredentials
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	return &OpenAIAdapter{
		apiKey:      apiKey,
		base:        strings.TrimRight(base, "/"),
		model:       model,
		temperature: temperature,
		client:      &http.Client{},
	}, nil
}

func (o *OpenAIAdapter) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	text, err := o.generate(ctx, prompt)
	metrics.ObserveGeneratorCall("openai", float64(time.Since(start).Milliseconds()), err == nil)
	return text, err
}

func (o *OpenAIAdapter) generate(ctx context.Context, prompt string) (string, error) {
	reqBody := struct {
		Model       string            `json:"model"`
		Messages    []adapter.Message `json:"messages"`
		Temperature float64           `json:"temperature"`
	}{
		Model:       o.model,
		Messages:    []adapter.Message{{Role: "user", Content: prompt}},
		Temperature: o.temperature,
	}
	b, _ := json.Marshal(reqBody)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, o.base+"/chat/completions", strings.NewReader(string(b)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", classifyTransport(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", &adapter.AuthError{Err: &adapter.UpstreamError{StatusCode: resp.StatusCode, Body: readBounded(resp.Body)}}
	}
	if resp.StatusCode >= 300 {
		return "", &adapter.UpstreamError{StatusCode: resp.StatusCode, Body: readBounded(resp.Body)}
	}

	var payload struct {
		Choices []struct {
			Message adapter.Message `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	for _, c := range payload.Choices {
		if c.Message.Content != "" {
			return StripFence(c.Message.Content), nil
		}
	}
	return "", adapter.ErrEmptyContent
}
