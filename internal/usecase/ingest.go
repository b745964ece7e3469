package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"html"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"NewsSignal/internal/domain/models"
	domrepo "NewsSignal/internal/domain/repository"
	domsvc "NewsSignal/internal/domain/service"
	"NewsSignal/pkg/cache"
	xlogger "NewsSignal/pkg/logger"
)

// DefaultMaxTextLen caps normalized statement text, in runes.
const DefaultMaxTextLen = 1500

var (
	tagRe        = regexp.MustCompile(`(?is)</?[^>]+>`)
	quoteReplace = strings.NewReplacer(
		"“", `"`, "”", `"`, "«", `"`, "»", `"`,
		"‘", "'", "’", "'",
	)
)

// NormalizeText decodes entities, strips markup, folds smart quotes,
// collapses whitespace, drops trailing punctuation and caps the length.
func NormalizeText(s string, maxLen int) string {
	s = html.UnescapeString(s)
	s = tagRe.ReplaceAllString(s, " ")
	s = quoteReplace.Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimSpace(strings.TrimRight(s, "!?.,"))
	if maxLen <= 0 {
		maxLen = DefaultMaxTextLen
	}
	if utf8.RuneCountInString(s) > maxLen {
		s = strings.TrimSpace(string([]rune(s)[:maxLen]))
	}
	return s
}

// IngestReport counts one ingest run.
type IngestReport struct {
	Fetched        int `json:"fetched"`
	Kept           int `json:"kept"`
	Filtered       int `json:"filtered"`
	Dedup          int `json:"dedup"`
	ProviderErrors int `json:"provider_errors"`
	Decided        int `json:"decided"`
}

type IngestOption func(*Ingestor)

// WithWhitelist keeps only statements from the named sources
// (case-insensitive). An empty list keeps everything.
func WithWhitelist(sources []string) IngestOption {
	return func(i *Ingestor) {
		i.whitelist = make(map[string]struct{}, len(sources))
		for _, s := range sources {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				i.whitelist[s] = struct{}{}
			}
		}
	}
}

func WithDedupWindow(d time.Duration) IngestOption {
	return func(i *Ingestor) {
		if d > 0 {
			i.window = d
		}
	}
}

func WithMaxTextLen(n int) IngestOption {
	return func(i *Ingestor) {
		if n > 0 {
			i.maxLen = n
		}
	}
}

// WithSeenCache remembers ingested texts across runs for ttl so a feed that
// keeps listing the same item does not re-decide it.
func WithSeenCache(c cache.Cache, ttl time.Duration) IngestOption {
	return func(i *Ingestor) {
		i.seen = c
		if ttl > 0 {
			i.seenTTL = ttl
		}
	}
}

func WithIngestLogger(l *xlogger.Logger) IngestOption {
	return func(i *Ingestor) {
		if l != nil {
			i.logger = l
		}
	}
}

func WithIngestMetrics(m domrepo.Metrics) IngestOption {
	return func(i *Ingestor) { i.metrics = m }
}

func WithIngestClock(now func() time.Time) IngestOption {
	return func(i *Ingestor) { i.now = now }
}

// Ingestor pulls statements from every provider, cleans them and feeds the
// survivors to the engine as one batch.
type Ingestor struct {
	providers []domrepo.StatementProvider
	engine    domsvc.Engine
	whitelist map[string]struct{}
	window    time.Duration
	maxLen    int
	seen      cache.Cache
	seenTTL   time.Duration
	logger    *xlogger.Logger
	metrics   domrepo.Metrics
	now       func() time.Time

	runMu sync.Mutex
}

func NewIngestor(engine domsvc.Engine, providers []domrepo.StatementProvider, opts ...IngestOption) *Ingestor {
	i := &Ingestor{
		providers: providers,
		engine:    engine,
		window:    10 * time.Minute,
		maxLen:    DefaultMaxTextLen,
		seenTTL:   24 * time.Hour,
		logger:    xlogger.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Providers lists the configured provider names.
func (i *Ingestor) Providers() []string {
	out := make([]string, 0, len(i.providers))
	for _, p := range i.providers {
		out = append(out, p.Name())
	}
	return out
}

// RunOnce fetches all providers concurrently. A failing provider is counted
// and skipped; the run only errors when the engine rejects the batch.
func (i *Ingestor) RunOnce(ctx context.Context) (IngestReport, []models.DecisionRecord, error) {
	i.runMu.Lock()
	defer i.runMu.Unlock()

	start := i.now()
	var (
		mu     sync.Mutex
		raw    []models.StatementInput
		report IngestReport
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range i.providers {
		g.Go(func() error {
			items, err := p.Fetch(gctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.ProviderErrors++
				i.logger.Warn("Provider fetch failed",
					xlogger.String("provider", p.Name()),
					xlogger.Error(err))
				if i.metrics != nil {
					i.metrics.RecordIngest(p.Name(), "error", 1)
					i.metrics.RecordError("ingest_provider")
				}
				return nil
			}
			if i.metrics != nil {
				i.metrics.RecordIngest(p.Name(), "fetched", len(items))
			}
			raw = append(raw, items...)
			return nil
		})
	}
	_ = g.Wait()
	report.Fetched = len(raw)

	kept := i.filter(ctx, start, raw, &report)
	report.Kept = len(kept)
	if i.metrics != nil {
		i.metrics.RecordIngest("all", "kept", report.Kept)
		i.metrics.RecordIngest("all", "filtered", report.Filtered)
		i.metrics.RecordIngest("all", "dedup", report.Dedup)
	}
	if len(kept) == 0 {
		return report, nil, nil
	}

	records, err := i.engine.Decide(ctx, kept)
	if err != nil {
		return report, nil, fmt.Errorf("ingest decide: %w", err)
	}
	report.Decided = len(records)
	i.markSeen(ctx, kept)

	i.logger.Info("Ingest run complete",
		xlogger.Int("fetched", report.Fetched),
		xlogger.Int("kept", report.Kept),
		xlogger.Int("filtered", report.Filtered),
		xlogger.Int("dedup", report.Dedup),
		xlogger.Int("provider_errors", report.ProviderErrors),
		xlogger.Duration("duration", i.now().Sub(start)))
	if i.metrics != nil {
		i.metrics.RecordLatency("ingest", i.now().Sub(start).Seconds())
	}
	return report, records, nil
}

// filter normalizes text, applies the whitelist and removes duplicates.
// Within a run only recent items (now - published <= window) are deduped.
func (i *Ingestor) filter(ctx context.Context, now time.Time, raw []models.StatementInput, report *IngestReport) []models.StatementInput {
	out := make([]models.StatementInput, 0, len(raw))
	inRun := make(map[string]struct{}, len(raw))
	for _, st := range raw {
		st.Text = NormalizeText(st.Text, i.maxLen)
		if st.Text == "" || !i.allowed(st.Source) {
			report.Filtered++
			continue
		}
		if i.alreadySeen(ctx, st.Text) {
			report.Dedup++
			continue
		}
		if now.Sub(st.At(now)) <= i.window {
			if _, dup := inRun[st.Text]; dup {
				report.Dedup++
				continue
			}
			inRun[st.Text] = struct{}{}
		}
		out = append(out, st)
	}
	return out
}

func (i *Ingestor) allowed(source string) bool {
	if len(i.whitelist) == 0 {
		return true
	}
	_, ok := i.whitelist[strings.ToLower(strings.TrimSpace(source))]
	return ok
}

func seenKey(text string) string {
	sum := sha1.Sum([]byte(text))
	return cache.Key("ingest:seen", hex.EncodeToString(sum[:]))
}

func (i *Ingestor) alreadySeen(ctx context.Context, text string) bool {
	if i.seen == nil {
		return false
	}
	ok, err := i.seen.Has(ctx, seenKey(text))
	if err != nil {
		i.logger.Debug("Seen cache lookup failed", xlogger.Error(err))
		return false
	}
	return ok
}

func (i *Ingestor) markSeen(ctx context.Context, batch []models.StatementInput) {
	if i.seen == nil {
		return
	}
	for _, st := range batch {
		if err := i.seen.Set(ctx, seenKey(st.Text), 1, i.seenTTL); err != nil {
			i.logger.Debug("Seen cache write failed", xlogger.Error(err))
		}
	}
}
