package contextual

import (
	_ "embed"
	"fmt"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

type RuleWhen struct {
	AnyContains []string `yaml:"any_contains"`
	AllContains []string `yaml:"all_contains"`
	NotContains []string `yaml:"not_contains"`
	MinLen      int      `yaml:"min_len"`
}

type RuleThen struct {
	SetAction       string  `yaml:"set_action"`
	BoostConfidence float64 `yaml:"boost_confidence"`
	AddReason       string  `yaml:"add_reason"`
}

type Rule struct {
	ID   string   `yaml:"id"`
	When RuleWhen `yaml:"when"`
	Then RuleThen `yaml:"then"`
}

type RuleSet struct {
	Version int    `yaml:"version"`
	Rules   []Rule `yaml:"rules"`
}

// RuleEffect is the combined outcome of every matching rule.
type RuleEffect struct {
	Matched []string
	Reasons []string
	Boost   float64
}

// Rules holds a hot-swappable rule set.
type Rules struct {
	set atomic.Pointer[RuleSet]
}

func ParseRules(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	for i := range rs.Rules {
		r := &rs.Rules[i]
		if r.ID == "" {
			return nil, fmt.Errorf("rule %d: missing id", i)
		}
		if r.Then.BoostConfidence < -1 || r.Then.BoostConfidence > 1 {
			return nil, fmt.Errorf("rule %s: boost_confidence out of range", r.ID)
		}
		lowerAll(r.When.AnyContains)
		lowerAll(r.When.AllContains)
		lowerAll(r.When.NotContains)
	}
	return &rs, nil
}

func lowerAll(s []string) {
	for i := range s {
		s[i] = strings.ToLower(s[i])
	}
}

func NewRules(rs *RuleSet) *Rules {
	r := &Rules{}
	if rs == nil {
		rs = &RuleSet{}
	}
	r.set.Store(rs)
	return r
}

func DefaultRules() *Rules {
	rs, err := ParseRules(defaultRulesYAML)
	if err != nil {
		panic(err)
	}
	return NewRules(rs)
}

// Reload parses data and swaps it in; on error the old set stays.
func (r *Rules) Reload(data []byte) error {
	rs, err := ParseRules(data)
	if err != nil {
		return err
	}
	r.set.Store(rs)
	return nil
}

func (r *Rules) Len() int { return len(r.set.Load().Rules) }

// Apply evaluates every rule against text.
func (r *Rules) Apply(text string) RuleEffect {
	var eff RuleEffect
	lower := strings.ToLower(text)
	for _, rule := range r.set.Load().Rules {
		if !rule.When.matches(lower) {
			continue
		}
		eff.Matched = append(eff.Matched, rule.ID)
		eff.Boost += rule.Then.BoostConfidence
		if rule.Then.AddReason != "" {
			eff.Reasons = append(eff.Reasons, rule.Then.AddReason)
		}
		if rule.Then.SetAction != "" {
			eff.Reasons = append(eff.Reasons, "rule:"+rule.ID+" suggests "+strings.ToUpper(rule.Then.SetAction))
		}
	}
	return eff
}

func (w RuleWhen) matches(lower string) bool {
	if w.MinLen > 0 && len(lower) < w.MinLen {
		return false
	}
	if len(w.AnyContains) > 0 {
		hit := false
		for _, s := range w.AnyContains {
			if strings.Contains(lower, s) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	for _, s := range w.AllContains {
		if !strings.Contains(lower, s) {
			return false
		}
	}
	for _, s := range w.NotContains {
		if strings.Contains(lower, s) {
			return false
		}
	}
	return true
}

// ApplyBoost adds boost to confidence and clamps the result to [0,1].
func ApplyBoost(confidence, boost float64) float64 {
	return min(max(confidence+boost, 0), 1)
}
