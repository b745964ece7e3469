package notify

import (
	"context"
	"fmt"
	"time"

	xhttp "NewsSignal/pkg/http"
)

// WebhookSink posts {"<field>": message} to an incoming-webhook URL.
type WebhookSink struct {
	name   string
	url    string
	field  string
	client *xhttp.Client
}

func NewWebhookSink(name, url, field string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSink{
		name:   name,
		url:    url,
		field:  field,
		client: xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

// NewSlackSink posts {"text": ...}.
func NewSlackSink(url string, timeout time.Duration) *WebhookSink {
	return NewWebhookSink("slack", url, "text", timeout)
}

// NewDiscordSink posts {"content": ...}.
func NewDiscordSink(url string, timeout time.Duration) *WebhookSink {
	return NewWebhookSink("discord", url, "content", timeout)
}

func (s *WebhookSink) Name() string { return s.name }

func (s *WebhookSink) Send(ctx context.Context, message string) error {
	err := s.client.PostJSON(ctx, s.url, map[string]string{s.field: message}, nil)
	if err != nil {
		return fmt.Errorf("%s webhook: %w", s.name, err)
	}
	return nil
}
