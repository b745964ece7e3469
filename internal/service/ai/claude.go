package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"NewsSignal/internal/domain/repository"
)

const (
	DefaultClaudeURL    = "https://api.anthropic.com"
	DefaultClaudeModel  = "claude-3-5-haiku-latest"
	anthropicAPIVersion = "2023-06-01"
)

type ClaudeProvider struct {
	base  *HTTPServiceBase
	model string
}

func NewClaudeProvider(apiKey, model, baseURL string, timeout time.Duration) *ClaudeProvider {
	if model == "" {
		model = DefaultClaudeModel
	}
	if baseURL == "" {
		baseURL = DefaultClaudeURL
	}
	return &ClaudeProvider{
		base: NewHTTPServiceBase(strings.TrimRight(baseURL, "/"), timeout, map[string]string{
			"x-api-key":         apiKey,
			"anthropic-version": anthropicAPIVersion,
		}),
		model: model,
	}
}

func (p *ClaudeProvider) Name() string { return "claude" }

type messagesRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system"`
	Messages  []chatMessage `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (p *ClaudeProvider) Ask(ctx context.Context, input string) (string, error) {
	req := messagesRequest{
		Model:     p.model,
		MaxTokens: 80,
		System:    systemPrompt,
		Messages:  []chatMessage{{Role: "user", Content: input}},
	}
	var resp messagesResponse
	if err := p.base.PostJSON(ctx, "/v1/messages", req, &resp); err != nil {
		return "", err
	}
	for _, c := range resp.Content {
		if c.Type == "text" && c.Text != "" {
			return c.Text, nil
		}
	}
	return "", fmt.Errorf("%w: claude returned no text", repository.ErrProvider)
}
