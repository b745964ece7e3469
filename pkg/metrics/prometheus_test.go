package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegistry(reg)

	r.RecordDecision("SELL", "reuters")
	r.RecordDecision("SELL", "reuters")
	r.RecordAI("cache_hit")
	r.RecordNotification("slack", "failed")
	r.RecordIngest("fed", "accepted", 3)
	r.RecordIngest("fed", "accepted", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.decisions.WithLabelValues("SELL", "reuters")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ai.WithLabelValues("cache_hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.notifications.WithLabelValues("slack", "failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.ingested.WithLabelValues("fed", "accepted")))
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		NewWithRegistry(prometheus.NewRegistry())
		NewWithRegistry(prometheus.NewRegistry())
	})
}
