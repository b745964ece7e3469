package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"NewsSignal/internal/domain/repository"
	xhttp "NewsSignal/pkg/http"
)

// systemPrompt is shared by the chat-style providers.
const systemPrompt = "You are a market hint generator. Return ONE short sentence (<=160 ASCII chars), neutral tone, no emojis. Output only the sentence."

// HTTPServiceBase centralizes client construction and JSON POSTs for the
// hosted providers.
type HTTPServiceBase struct {
	baseURL string
	client  *xhttp.Client
}

func NewHTTPServiceBase(baseURL string, timeout time.Duration, headers map[string]string) *HTTPServiceBase {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	opts := []xhttp.ClientOption{xhttp.WithTimeout(timeout)}
	for k, v := range headers {
		opts = append(opts, xhttp.WithHeader(k, v))
	}
	return &HTTPServiceBase{
		baseURL: baseURL,
		client:  xhttp.NewClient(opts...),
	}
}

// PostJSON posts payload to path under baseURL and decodes JSON into dest.
// Deadline errors come back as repository.ErrProviderTimeout, everything
// else as repository.ErrProvider.
func (b *HTTPServiceBase) PostJSON(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	err := b.client.PostJSON(ctx, b.baseURL+path, payload, dest)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: post %s: %w", repository.ErrProviderTimeout, path, err)
	}
	return fmt.Errorf("%w: post %s: %w", repository.ErrProvider, path, err)
}
