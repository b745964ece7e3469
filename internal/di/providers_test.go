package di

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsSignal/internal/domain/models"
	internalrepo "NewsSignal/internal/repository"
	"NewsSignal/pkg/config"
	xlogger "NewsSignal/pkg/logger"
	"NewsSignal/pkg/metrics"
)

func testConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	require.NoError(t, err)
	return cfg
}

func TestProvideComponentsDefaults(t *testing.T) {
	cfg := testConfig(t, "")
	c, err := ProvideComponents(cfg, xlogger.NewNop(), nil)
	require.NoError(t, err)

	e := ProvideEngine(cfg, c, xlogger.NewNop(), metrics.Nop{})
	recs, err := e.Decide(context.Background(), []models.StatementInput{
		{Source: "Reuters", Text: "ISM manufacturing dips below 50; the Dow slips."},
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, models.DecisionSell, recs[0].Decision)
}

func TestProvideComponentsRejectsBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sources: [unclosed"), 0o644))

	cfg := testConfig(t, "engine:\n  source_weights_path: "+path+"\n")
	_, err := ProvideComponents(cfg, xlogger.NewNop(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source_weights")
}

func TestConfigWatcherReloadsWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default_weight: 0.5\nsources:\n  reuters: {weight: 0.9}\n"), 0o644))

	cfg := testConfig(t, "engine:\n  source_weights_path: "+path+"\n")
	c, err := ProvideComponents(cfg, xlogger.NewNop(), nil)
	require.NoError(t, err)
	w := ProvideConfigWatcher(cfg, c, xlogger.NewNop(), metrics.Nop{})

	require.NoError(t, os.WriteFile(path, []byte("default_weight: 0.5\nsources:\n  reuters: {weight: 0.4}\n"), 0o644))
	require.NoError(t, w.ReloadAll())
	assert.InDelta(t, 0.4, c.Weights.Lookup("Reuters").Weight, 1e-9)
}

func TestProvideStateStore(t *testing.T) {
	cfg := testConfig(t, "state:\n  backend: file\n  path: "+t.TempDir()+"\n")
	_, ok := ProvideStateStore(cfg, nil).(*internalrepo.FileStateStore)
	assert.True(t, ok)

	cfg = testConfig(t, "")
	_, ok = ProvideStateStore(cfg, nil).(internalrepo.NopStateStore)
	assert.True(t, ok)
}

func TestProvideSchedulerRegistersEnabledJobs(t *testing.T) {
	cfg := testConfig(t, "state:\n  backend: file\n  path: "+t.TempDir()+"\n")
	c, err := ProvideComponents(cfg, xlogger.NewNop(), nil)
	require.NoError(t, err)
	e := ProvideEngine(cfg, c, xlogger.NewNop(), metrics.Nop{})
	store := ProvideStateStore(cfg, nil)
	n := ProvideNotifier(cfg, e, ProvideNotificationSink(cfg, xlogger.NewNop(), metrics.Nop{}), store, xlogger.NewNop(), metrics.Nop{})
	ing := ProvideIngestor(cfg, e, nil, ProvideCache(cfg, nil), xlogger.NewNop(), metrics.Nop{})

	s, err := ProvideScheduler(cfg, e, n, ing, store, xlogger.NewNop(), metrics.Nop{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"notify_poll", "rolling_evict", "checkpoint"}, s.Jobs())
}

func TestProvideDecisionRouterNone(t *testing.T) {
	cfg := testConfig(t, "")
	r, err := ProvideDecisionRouter(cfg, nil, nil, xlogger.NewNop(), metrics.Nop{})
	require.NoError(t, err)
	assert.Nil(t, r)
	assert.Nil(t, ProvideDeliveryPipeline(cfg, r, nil, xlogger.NewNop(), metrics.Nop{}))
}

func TestProvideAppStartsAndStops(t *testing.T) {
	cfg := testConfig(t, "engine:\n  hot_reload: false\nnotify:\n  enabled: false\n")
	c, err := ProvideComponents(cfg, xlogger.NewNop(), nil)
	require.NoError(t, err)
	e := ProvideEngine(cfg, c, xlogger.NewNop(), metrics.Nop{})
	store := ProvideStateStore(cfg, nil)
	n := ProvideNotifier(cfg, e, ProvideNotificationSink(cfg, xlogger.NewNop(), metrics.Nop{}), store, xlogger.NewNop(), metrics.Nop{})
	ing := ProvideIngestor(cfg, e, nil, ProvideCache(cfg, nil), xlogger.NewNop(), metrics.Nop{})
	s, err := ProvideScheduler(cfg, e, n, ing, store, xlogger.NewNop(), metrics.Nop{})
	require.NoError(t, err)
	hub := ProvideStreamHub(cfg, e, xlogger.NewNop())
	w := ProvideConfigWatcher(cfg, c, xlogger.NewNop(), metrics.Nop{})

	app := ProvideApp(cfg, xlogger.NewNop(), nil, e, n, store, w, s, nil, nil, nil, hub, nil, nil,
		func(context.Context) error { return nil })
	assert.Equal(t, []string{"tracing", "state", "stream", "scheduler"}, app.Components())

	require.NoError(t, app.Start(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, app.Shutdown(ctx))
}
