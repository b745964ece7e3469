// Package relevance decides whether a statement is about the market at all.
//
// Rules are anchors (positive evidence grouped by category), blockers
// (exclusions), proximity constraints measured in word tokens and combo
// templates that must be met before any score is emitted. The compiled
// rule set is swapped atomically on reload.
package relevance

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"NewsSignal/internal/domain/models"
	xlogger "NewsSignal/pkg/logger"
)

type Option func(*Gate)

// WithThreshold overrides the threshold from the rules file.
func WithThreshold(t float64) Option {
	return func(g *Gate) {
		t = min(max(t, 0), 1)
		g.override = &t
	}
}

// WithLogger sets the logger used for skipped-pattern warnings.
func WithLogger(l *xlogger.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithLenientPatterns keeps rules whose pattern does not compile and skips
// them during evaluation instead of rejecting the whole file.
func WithLenientPatterns() Option {
	return func(g *Gate) { g.lenient = true }
}

type Gate struct {
	rules    atomic.Pointer[ruleSet]
	override *float64
	lenient  bool
	logger   *xlogger.Logger
}

// NewGate compiles cfg (or the embedded default when nil). A bad pattern is
// a fatal error here unless lenient mode is on.
func NewGate(cfg *Config, opts ...Option) (*Gate, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate relevance rules: %w", err)
	}
	g := &Gate{logger: xlogger.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	rs, err := compile(cfg, !g.lenient)
	if err != nil {
		return nil, err
	}
	g.rules.Store(rs)
	return g, nil
}

// Reload parses and compiles data, then swaps it in. On error the current
// rules stay active.
func (g *Gate) Reload(data []byte) error {
	cfg, err := ParseConfig(data)
	if err != nil {
		return err
	}
	rs, err := compile(cfg, !g.lenient)
	if err != nil {
		return err
	}
	g.rules.Store(rs)
	return nil
}

// Threshold is the effective relevance threshold.
func (g *Gate) Threshold() float64 {
	if g.override != nil {
		return *g.override
	}
	return g.rules.Load().threshold
}

// Evaluate scores text against the current rules.
func (g *Gate) Evaluate(text string) models.RelevanceResult {
	rs := g.rules.Load()
	threshold := g.Threshold()
	toks := indexTokens(text)
	var res models.RelevanceResult

	// 1) blockers win over everything
	for _, b := range rs.blockers {
		idx := g.match(b.pat, b.cfg.ID, text, toks)
		if len(idx) == 0 {
			continue
		}
		if b.near != nil && !g.near(idx, b.near, b.cfg.ID, text, toks) {
			continue
		}
		if b.unlessNear != nil && g.near(idx, b.unlessNear, b.cfg.ID, text, toks) {
			continue
		}
		res.MatchedBlockers = append(res.MatchedBlockers, b.cfg.ID)
		res.Reasons = append(res.Reasons, fmt.Sprintf("blocker:%s:%s", b.cfg.ID, b.cfg.Reason))
	}
	if len(res.MatchedBlockers) > 0 {
		return res
	}

	// 2) anchors
	counts := make(map[string]int)
	singleStock := false
	for _, a := range rs.anchors {
		idx := g.match(a.pat, a.cfg.ID, text, toks)
		if len(idx) == 0 {
			continue
		}
		if a.near != nil && !g.near(idx, a.near, a.cfg.ID, text, toks) {
			continue
		}
		res.MatchedAnchors = append(res.MatchedAnchors, a.cfg.ID)
		counts[a.cfg.Category]++
		if a.cfg.Tag == TagSingleStockOnly {
			singleStock = true
		}
	}
	sort.Strings(res.MatchedAnchors)

	if singleStock && counts["hard"]+counts["macro"]+counts["semi"] == 0 {
		res.Reasons = append(res.Reasons, "single_stock_only_without_broader_context")
		return res
	}

	// 3) combos
	used, comboOK := rs.satisfyCombo(counts)
	res.ComboSatisfied = comboOK
	if comboOK && len(used) > 0 {
		res.Reasons = append(res.Reasons, "combo:"+strings.Join(used, "+"))
	}

	// 4) weighted score
	score := rs.weightedScore(counts)
	switch {
	case comboOK:
		res.Reasons = append(res.Reasons, "combos_ok")
		if len(used) > 0 {
			score += rs.cfg.Combos.Bonus
		}
	case rs.cfg.comboRequired():
		res.Reasons = append(res.Reasons, "combos_fail")
		score = 0
	default:
		res.Reasons = append(res.Reasons, "combos_fail")
		score *= rs.cfg.Combos.FailFactor
	}
	score = min(max(score, 0), 1)

	if score > 0 && score >= threshold {
		res.Reasons = append(res.Reasons, fmt.Sprintf("threshold_ok:%.2f", threshold))
		res.Score = score
	} else {
		res.Reasons = append(res.Reasons, fmt.Sprintf("threshold_fail:%.2f", threshold))
	}
	return res
}

// satisfyCombo returns the categories spent by the first satisfied template.
// With no templates configured the check passes with nothing spent.
func (rs *ruleSet) satisfyCombo(counts map[string]int) ([]string, bool) {
	if len(rs.cfg.Combos.PassAny) == 0 {
		return nil, true
	}
next:
	for _, tpl := range rs.cfg.Combos.PassAny {
		pool := make(map[string]int, len(counts))
		for k, v := range counts {
			pool[k] = v
		}
		used := make([]string, 0, len(tpl.Need))
		for _, need := range tpl.Need {
			choices, ok := rs.cfg.Aliases[need]
			if !ok {
				choices = []string{need}
			}
			spent := false
			for _, ch := range choices {
				if pool[ch] > 0 {
					pool[ch]--
					used = append(used, ch)
					spent = true
					break
				}
			}
			if !spent {
				continue next
			}
		}
		return used, true
	}
	return nil, false
}

// weightedScore is sum(min(count,cap)*w) / sum(cap*w).
func (rs *ruleSet) weightedScore(counts map[string]int) float64 {
	var num, denom float64
	for _, cat := range rs.categories {
		w := rs.cfg.Weights[cat]
		num += float64(min(counts[cat], rs.cap)) * w
		denom += float64(rs.cap) * w
	}
	if denom <= 0 {
		return 0
	}
	return num / denom
}

func (g *Gate) match(p *pattern, owner, text string, toks tokenIndex) []int {
	if p.re == nil {
		p.warnOnce.Do(func() {
			g.logger.Warn("relevance rule skipped: pattern does not compile",
				xlogger.String("rule", owner),
				xlogger.String("pattern", p.src),
				xlogger.Error(p.err),
			)
		})
		return nil
	}
	return toks.matchIndices(p.re, text)
}

func (g *Gate) near(main []int, px *proximity, owner, text string, toks tokenIndex) bool {
	other := g.match(px.pat, owner, text, toks)
	return withinWindow(main, other, px.window)
}
