package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsSignal/pkg/metrics"
)

func TestStatementConsumerSingleAndBatch(t *testing.T) {
	eng := &captureEngine{}
	h := NewStatementConsumer("newssignal.statements", eng, metrics.Nop{})
	assert.Equal(t, "newssignal.statements", h.Topic())

	require.NoError(t, h.Handle(context.Background(), []byte(`{"source":"Reuters","text":"Fed holds"}`)))
	require.NoError(t, h.Handle(context.Background(), []byte(` [{"source":"Fed","text":"a"},{"source":"Fed","text":"b"}]`)))
	require.NoError(t, h.Handle(context.Background(), []byte("  ")))

	require.Len(t, eng.batches, 2)
	assert.Equal(t, "Reuters", eng.batches[0][0].Source)
	assert.Len(t, eng.batches[1], 2)
}

func TestStatementConsumerRejectsGarbage(t *testing.T) {
	h := NewStatementConsumer("t", &captureEngine{}, nil)
	assert.Error(t, h.Handle(context.Background(), []byte(`{"source":`)))
}

func TestDecideJobHandlesQueuePayload(t *testing.T) {
	eng := &captureEngine{}
	j := NewDecideJob(eng, nil)
	assert.Equal(t, DecideJobType, j.Type())
	require.NoError(t, j.Handle(context.Background(), []byte(`[{"source":"Fed","text":"Fed holds"}]`)))
	require.Len(t, eng.batches, 1)
	assert.Equal(t, "Fed", eng.batches[0][0].Source)
}
