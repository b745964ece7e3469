package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"NewsSignal/internal/domain/models"
	domrepo "NewsSignal/internal/domain/repository"
	domsvc "NewsSignal/internal/domain/service"
	"NewsSignal/internal/services/arbiter"
	"NewsSignal/internal/services/calibrate"
	"NewsSignal/internal/services/contextual"
	"NewsSignal/internal/services/disruption"
	"NewsSignal/internal/services/relevance"
	"NewsSignal/internal/services/rolling"
	"NewsSignal/internal/services/sentiment"
	"NewsSignal/internal/services/sourceweight"
	xlogger "NewsSignal/pkg/logger"
	"NewsSignal/pkg/tracing"
)

// Components groups the scoring stages the engine drives. Arbiter may be nil.
type Components struct {
	Gate       *relevance.Gate
	Scorer     *sentiment.Scorer
	Weights    *sourceweight.Registry
	Antispam   *contextual.Antispam
	Reranker   *contextual.Reranker
	NER        *contextual.NER
	Rules      *contextual.Rules
	Rolling    *rolling.Store
	History    *rolling.History
	Disruption *disruption.Calculator
	Calibrator *calibrate.Calibrator
	Arbiter    *arbiter.Arbiter
}

type EngineOption func(*DecisionEngine)

func WithEngineLogger(l *xlogger.Logger) EngineOption {
	return func(e *DecisionEngine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithEngineMetrics(m domrepo.Metrics) EngineOption {
	return func(e *DecisionEngine) { e.metrics = m }
}

func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *DecisionEngine) { e.now = now }
}

// WithWorkers bounds how many statements of one batch are scored at once.
func WithWorkers(n int) EngineOption {
	return func(e *DecisionEngine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithDuplicateDecay sets the disruption multiplier for antispam duplicates.
func WithDuplicateDecay(f float64) EngineOption {
	return func(e *DecisionEngine) {
		if f > 0 && f <= 1 {
			e.dupDecay = f
		}
	}
}

// DecisionEngine runs the scoring pipeline. The rolling store and history
// change only when a record is committed. The antispam window is checked
// and written in one step so concurrent statements see each other.
type DecisionEngine struct {
	c        Components
	logger   *xlogger.Logger
	metrics  domrepo.Metrics
	now      func() time.Time
	workers  int
	dupDecay float64

	commitMu sync.Mutex
	hooksMu  sync.RWMutex
	hooks    []func(models.DecisionRecord)
}

var _ domsvc.Engine = (*DecisionEngine)(nil)

func NewDecisionEngine(c Components, opts ...EngineOption) *DecisionEngine {
	e := &DecisionEngine{
		c:        c,
		logger:   xlogger.NewNop(),
		now:      time.Now,
		workers:  8,
		dupDecay: contextual.DefaultRerankConfig().Decay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnCommit registers fn to run after every committed record. Hooks run on
// the committing goroutine and must not block.
func (e *DecisionEngine) OnCommit(fn func(models.DecisionRecord)) {
	e.hooksMu.Lock()
	e.hooks = append(e.hooks, fn)
	e.hooksMu.Unlock()
}

// Analyze scores one statement without deciding or recording anything.
func (e *DecisionEngine) Analyze(ctx context.Context, in models.StatementInput) (models.AnalyzeResult, error) {
	if err := ctx.Err(); err != nil {
		return models.AnalyzeResult{}, err
	}
	now := e.now()
	sent := e.c.Scorer.Score(in.Text)
	return models.AnalyzeResult{
		Relevance:  e.c.Gate.Evaluate(in.Text),
		Sentiment:  sent,
		Disruption: e.evaluateDisruption(in, sent, now),
		Cashtags:   relevance.Cashtags(in.Text),
		Hashtags:   relevance.Hashtags(in.Text),
	}, nil
}

// Decide scores a batch concurrently and commits each record as soon as it
// is ready, so history holds them in completion order. The returned slice
// follows input order.
func (e *DecisionEngine) Decide(ctx context.Context, batch []models.StatementInput) ([]models.DecisionRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "engine.decide", trace.WithAttributes(attribute.Int("batch.size", len(batch))))
	defer span.End()
	start := e.now()

	if len(batch) == 0 {
		return []models.DecisionRecord{}, nil
	}

	rels := make([]models.RelevanceResult, len(batch))
	cands := make([]contextual.Candidate, len(batch))
	for i, in := range batch {
		rels[i] = e.c.Gate.Evaluate(in.Text)
		cands[i] = contextual.Candidate{
			Source:    in.SourceOrUnknown(),
			Text:      in.Text,
			Timestamp: in.At(start),
			Relevance: rels[i].Score,
		}
	}
	mults := e.c.Reranker.Rerank(cands)

	out := make([]models.DecisionRecord, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range batch {
		g.Go(func() error {
			rec, held := e.score(gctx, batch[i], rels[i], mults[i])
			if err := gctx.Err(); err != nil {
				held.Release()
				return err
			}
			e.commit(batch[i], rec, held)
			out[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("decide: %w", err)
	}
	if e.metrics != nil {
		e.metrics.RecordLatency("decide", e.now().Sub(start).Seconds())
	}
	return out, nil
}

func (e *DecisionEngine) evaluateDisruption(in models.StatementInput, sent models.SentimentResult, now time.Time) models.DisruptionResult {
	w := e.c.Weights.Resolve(in.SourceOrUnknown())
	if in.Weight != nil {
		w = *in.Weight
	}
	return e.c.Disruption.Evaluate(disruption.Input{
		SourceWeight: w,
		RawSentiment: sent.RawScore,
		StatementAt:  in.At(now),
		Now:          now,
	})
}

// score builds the record for one statement. It reads shared state through
// snapshots, except for the antispam window: a passing statement reserves
// its entry there while it is scored, and the caller must commit or release
// the returned reservation.
func (e *DecisionEngine) score(ctx context.Context, in models.StatementInput, rel models.RelevanceResult, mult float64) (models.DecisionRecord, *contextual.Reservation) {
	now := e.now()
	rec := models.DecisionRecord{
		ID:        in.ID,
		Timestamp: now,
		Source:    in.SourceOrUnknown(),
		Text:      in.Text,
		Relevance: rel,
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	if !rel.Passed() {
		n := calibrate.Neutral()
		rec.Decision = n.Decision
		rec.Confidence = n.Confidence
		rec.Reasons = append(n.Reasons, prefixed("rel: ", rel.Reasons)...)
		return rec, nil
	}

	rec.Sentiment = e.c.Scorer.Score(in.Text)
	dis := e.evaluateDisruption(in, rec.Sentiment, now)

	reasons := []string{fmt.Sprintf("relevance gate passed (rel %.2f)", rel.Score)}
	reasons = append(reasons, prefixed("rel: ", rel.Reasons)...)

	v, held := e.c.Antispam.Reserve(in.At(now), in.Text)
	if v.Duplicate {
		mult *= e.dupDecay
		reasons = append(reasons, fmt.Sprintf("antispam: near-duplicate (sim %.2f)", v.Similarity))
	}

	cal := e.c.Calibrator.Calibrate(calibrate.Input{
		Relevance:  rel.Score,
		Disruption: dis,
		Multiplier: mult,
		Rolling:    e.c.Rolling.Snapshot(now),
	})
	reasons = append(reasons, cal.Reasons...)

	confidence := cal.Confidence
	if e.c.Rules != nil {
		eff := e.c.Rules.Apply(in.Text)
		confidence = contextual.ApplyBoost(confidence, eff.Boost)
		reasons = append(reasons, eff.Reasons...)
	}
	if cal.Decision == models.DecisionHold {
		confidence = min(confidence, e.c.Calibrator.Params().HoldCap)
	}
	if e.c.NER != nil {
		reasons = append(reasons, e.c.NER.Enrich(in.Text)...)
	}

	if e.c.Arbiter != nil {
		buy, sell := e.c.Calibrator.Boundaries()
		rec.AI = e.c.Arbiter.Arbitrate(ctx, arbiter.Request{
			Text:   in.Text,
			Source: rec.Source,
			Score:  cal.Score,
			Buy:    buy,
			Sell:   sell,
		})
		if rec.AI != nil && rec.AI.Used && rec.AI.Reason != "" {
			reasons = append(reasons, "ai: "+rec.AI.Reason)
		}
	}

	if mult > 0 && mult < 1 {
		dis.Score *= mult
	}
	rec.Disruption = dis
	rec.Decision = cal.Decision
	rec.Confidence = confidence
	rec.Reasons = reasons
	return rec, held
}

// commit records rec in rolling and history. A NEUTRAL record gives its
// antispam entry back.
func (e *DecisionEngine) commit(in models.StatementInput, rec models.DecisionRecord, held *contextual.Reservation) {
	e.commitMu.Lock()
	if rec.Decision != models.DecisionNeutral {
		ts := in.At(rec.Timestamp)
		e.c.Rolling.Add(models.RollingSample{Timestamp: ts, Value: rec.Disruption.Score, Source: rec.Source})
	} else {
		held.Release()
	}
	e.c.History.Append(rec)
	e.commitMu.Unlock()

	if e.metrics != nil {
		e.metrics.RecordDecision(rec.Decision.String(), rec.Source)
	}
	e.logger.Debug("decision committed",
		xlogger.String("id", rec.ID),
		xlogger.String("source", rec.Source),
		xlogger.String("decision", rec.Decision.String()),
		xlogger.Float64("confidence", rec.Confidence),
	)

	e.hooksMu.RLock()
	defer e.hooksMu.RUnlock()
	for _, fn := range e.hooks {
		fn(rec)
	}
}

func prefixed(prefix string, ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = prefix + s
	}
	return out
}

// Debug accessors.

func (e *DecisionEngine) RollingSnapshot() rolling.Snapshot { return e.c.Rolling.Snapshot(e.now()) }

func (e *DecisionEngine) Recent(limit int) []models.DecisionRecord { return e.c.History.Recent(limit) }

func (e *DecisionEngine) Last() (models.DecisionRecord, bool) { return e.c.History.Last() }

func (e *DecisionEngine) LookupSource(source string) sourceweight.Match {
	return e.c.Weights.Lookup(source)
}

// AIStats is nil when no arbiter is configured.
func (e *DecisionEngine) AIStats(ctx context.Context) *arbiter.Stats {
	if e.c.Arbiter == nil {
		return nil
	}
	s := e.c.Arbiter.Stats(ctx)
	return &s
}

// Evict drops expired rolling samples; the scheduler calls it periodically.
func (e *DecisionEngine) Evict() int { return e.c.Rolling.Evict(e.now()) }

func (e *DecisionEngine) History() *rolling.History { return e.c.History }

const rollingStateKey = "rolling"

// SaveRolling checkpoints the rolling samples.
func (e *DecisionEngine) SaveRolling(ctx context.Context, store domrepo.StateStore) error {
	if store == nil {
		return nil
	}
	if err := store.Save(ctx, rollingStateKey, e.c.Rolling.Samples()); err != nil {
		return fmt.Errorf("save rolling: %w", err)
	}
	return nil
}

// RestoreRolling replaces the rolling samples with the last checkpoint.
// Samples that have aged out are dropped on the next snapshot.
func (e *DecisionEngine) RestoreRolling(ctx context.Context, store domrepo.StateStore) error {
	if store == nil {
		return nil
	}
	var samples []models.RollingSample
	if err := store.Load(ctx, rollingStateKey, &samples); err != nil {
		return fmt.Errorf("load rolling: %w", err)
	}
	e.c.Rolling.Restore(samples)
	return nil
}
