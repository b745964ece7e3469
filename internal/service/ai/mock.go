package ai

import "context"

const MockReason = "Neutral hint (mock)"

// MockProvider answers every input with a fixed reason.
type MockProvider struct {
	Reply string
}

func (MockProvider) Name() string { return "mock" }

func (m MockProvider) Ask(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.Reply == "" {
		return MockReason, nil
	}
	return m.Reply, nil
}
