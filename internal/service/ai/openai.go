package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"NewsSignal/internal/domain/repository"
)

const (
	DefaultOpenAIURL   = "https://api.openai.com"
	DefaultOpenAIModel = "gpt-4o-mini"
)

type OpenAIProvider struct {
	base  *HTTPServiceBase
	model string
}

func NewOpenAIProvider(apiKey, model, baseURL string, timeout time.Duration) *OpenAIProvider {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIURL
	}
	return &OpenAIProvider{
		base:  NewHTTPServiceBase(strings.TrimRight(baseURL, "/"), timeout, map[string]string{"Authorization": "Bearer " + apiKey}),
		model: model,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (p *OpenAIProvider) Ask(ctx context.Context, input string) (string, error) {
	req := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: input},
		},
		Temperature: 0.2,
		MaxTokens:   80,
	}
	var resp chatResponse
	if err := p.base.PostJSON(ctx, "/v1/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: openai returned no choices", repository.ErrProvider)
	}
	return resp.Choices[0].Message.Content, nil
}
