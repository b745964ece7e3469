package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsSignal/internal/domain/models"
	"NewsSignal/pkg/metrics"
)

type memPublisher struct {
	published []*models.DecisionRecord
	err       error
	closed    bool
}

func (m *memPublisher) Publish(_ context.Context, r *models.DecisionRecord) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, r)
	return nil
}

func (m *memPublisher) PublishBatch(ctx context.Context, rs []*models.DecisionRecord) error {
	for _, r := range rs {
		if err := m.Publish(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (m *memPublisher) Close() error { m.closed = true; return nil }

type memArchive struct {
	stored []*models.DecisionRecord
}

func (m *memArchive) Init(context.Context) error { return nil }

func (m *memArchive) Store(_ context.Context, r *models.DecisionRecord) error {
	m.stored = append(m.stored, r)
	return nil
}

func (m *memArchive) StoreBatch(_ context.Context, rs []*models.DecisionRecord) error {
	m.stored = append(m.stored, rs...)
	return nil
}

func (m *memArchive) Query(context.Context, string, time.Time, time.Time, int) ([]*models.DecisionRecord, error) {
	return m.stored, nil
}

func (m *memArchive) Health(context.Context) error { return nil }
func (m *memArchive) Close() error                 { return nil }

func TestDecisionRouterBackends(t *testing.T) {
	ctx := context.Background()
	rec := &models.DecisionRecord{ID: "d-1", Source: "Reuters", Decision: models.DecisionSell}

	pub, arch := &memPublisher{}, &memArchive{}
	require.NoError(t, NewDecisionRouter(pub, arch, metrics.Nop{}, BackendKafka).Process(ctx, rec))
	assert.Len(t, pub.published, 1)
	assert.Empty(t, arch.stored)

	require.NoError(t, NewDecisionRouter(pub, arch, nil, BackendClickHouse).ProcessBatch(ctx, []*models.DecisionRecord{rec, rec}))
	assert.Len(t, arch.stored, 2)

	assert.Error(t, NewDecisionRouter(pub, arch, nil, "s3").Process(ctx, rec))
	assert.Error(t, NewDecisionRouter(pub, arch, nil, BackendKafka).Process(ctx, nil))

	pub.err = errors.New("broker down")
	err := NewDecisionRouter(pub, arch, nil, BackendKafka).Process(ctx, rec)
	assert.ErrorIs(t, err, pub.err)

	r := NewDecisionRouter(pub, arch, nil, BackendKafka)
	r.Close()
	assert.True(t, pub.closed)
}
