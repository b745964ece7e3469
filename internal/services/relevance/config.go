package relevance

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultThreshold applies when the rules file omits relevance.threshold.
const DefaultThreshold = 0.5

// TagSingleStockOnly marks anchors that need broader market context.
const TagSingleStockOnly = "single_stock_only"

//go:embed relevance.yaml
var defaultRules []byte

// Config mirrors the rules file.
type Config struct {
	Relevance struct {
		Threshold         *float64 `yaml:"threshold"`
		NearDefaultWindow int      `yaml:"near_default_window"`
	} `yaml:"relevance"`
	CategoryCap int                 `yaml:"category_cap"`
	Weights     map[string]float64  `yaml:"weights"`
	Aliases     map[string][]string `yaml:"aliases"`
	Anchors     []AnchorConfig      `yaml:"anchors"`
	Blockers    []BlockerConfig     `yaml:"blockers"`
	Combos      ComboConfig         `yaml:"combos"`
}

type NearConfig struct {
	Pattern string `yaml:"pattern"`
	Window  int    `yaml:"window"`
}

type AnchorConfig struct {
	ID       string      `yaml:"id"`
	Category string      `yaml:"category"`
	Pattern  string      `yaml:"pattern"`
	Near     *NearConfig `yaml:"near"`
	Tag      string      `yaml:"tag"`
}

type BlockerConfig struct {
	ID         string      `yaml:"id"`
	Pattern    string      `yaml:"pattern"`
	Reason     string      `yaml:"reason"`
	Action     string      `yaml:"action"`
	Near       *NearConfig `yaml:"near"`
	UnlessNear *NearConfig `yaml:"unless_near"`
}

type ComboConfig struct {
	PassAny []ComboNeed `yaml:"pass_any"`
	// Required zeroes the score when no combo is satisfied. When false the
	// score is multiplied by FailFactor instead.
	Required   *bool   `yaml:"required"`
	Bonus      float64 `yaml:"bonus"`
	FailFactor float64 `yaml:"fail_factor"`
}

type ComboNeed struct {
	Need []string `yaml:"need"`
}

// ParseConfig decodes and validates a rules file.
func ParseConfig(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse relevance rules: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("validate relevance rules: %w", err)
	}
	return &c, nil
}

// DefaultConfig returns the embedded rules.
func DefaultConfig() *Config {
	c, err := ParseConfig(defaultRules)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Config) validate() error {
	if len(c.Weights) == 0 {
		return fmt.Errorf("weights are empty")
	}
	for cat, w := range c.Weights {
		if w < 0 {
			return fmt.Errorf("weight for %q is negative", cat)
		}
	}
	if t := c.Relevance.Threshold; t != nil && (*t < 0 || *t > 1) {
		return fmt.Errorf("threshold %.2f outside [0,1]", *t)
	}
	if c.CategoryCap < 0 {
		return fmt.Errorf("category_cap is negative")
	}
	if c.Combos.Bonus < 0 || c.Combos.Bonus > 1 {
		return fmt.Errorf("combo bonus outside [0,1]")
	}
	if c.Combos.FailFactor < 0 || c.Combos.FailFactor > 1 {
		return fmt.Errorf("combo fail_factor outside [0,1]")
	}
	seen := map[string]struct{}{}
	for _, a := range c.Anchors {
		if a.ID == "" || a.Pattern == "" {
			return fmt.Errorf("anchor needs id and pattern")
		}
		if _, ok := c.Weights[a.Category]; !ok {
			return fmt.Errorf("anchor %s: unknown category %q", a.ID, a.Category)
		}
		if _, dup := seen[a.ID]; dup {
			return fmt.Errorf("duplicate rule id %q", a.ID)
		}
		seen[a.ID] = struct{}{}
	}
	for _, b := range c.Blockers {
		if b.ID == "" || b.Pattern == "" {
			return fmt.Errorf("blocker needs id and pattern")
		}
		if _, dup := seen[b.ID]; dup {
			return fmt.Errorf("duplicate rule id %q", b.ID)
		}
		seen[b.ID] = struct{}{}
	}
	for alias, cats := range c.Aliases {
		for _, cat := range cats {
			if _, ok := c.Weights[cat]; !ok {
				return fmt.Errorf("alias %s: unknown category %q", alias, cat)
			}
		}
	}
	for i, combo := range c.Combos.PassAny {
		if len(combo.Need) == 0 {
			return fmt.Errorf("combo %d has no needs", i)
		}
		for _, n := range combo.Need {
			_, isCat := c.Weights[n]
			_, isAlias := c.Aliases[n]
			if !isCat && !isAlias {
				return fmt.Errorf("combo %d: unknown category or alias %q", i, n)
			}
		}
	}
	return nil
}

func (c *Config) threshold() float64 {
	if c.Relevance.Threshold != nil {
		return *c.Relevance.Threshold
	}
	return DefaultThreshold
}

func (c *Config) comboRequired() bool {
	return c.Combos.Required == nil || *c.Combos.Required
}

type pattern struct {
	src      string
	re       *regexp.Regexp
	err      error
	warnOnce sync.Once
}

type proximity struct {
	pat    *pattern
	window int
}

type compiledAnchor struct {
	cfg  AnchorConfig
	pat  *pattern
	near *proximity
}

type compiledBlocker struct {
	cfg        BlockerConfig
	pat        *pattern
	near       *proximity
	unlessNear *proximity
}

// ruleSet is an immutable compiled snapshot of a Config.
type ruleSet struct {
	cfg       *Config
	threshold float64
	cap       int
	anchors   []*compiledAnchor
	blockers  []*compiledBlocker
	// categories sorted for a deterministic score sum
	categories []string
}

// compile builds a ruleSet. In strict mode any bad pattern is an error; in
// lenient mode the rule is kept with its error and skipped at evaluation.
func compile(c *Config, strict bool) (*ruleSet, error) {
	rs := &ruleSet{cfg: c, threshold: c.threshold(), cap: c.CategoryCap}
	if rs.cap == 0 {
		rs.cap = 3
	}
	defWin := c.Relevance.NearDefaultWindow
	if defWin <= 0 {
		defWin = 6
	}

	var errs []error
	mk := func(owner, src string) *pattern {
		re, err := regexp.Compile(src)
		if err != nil {
			err = fmt.Errorf("rule %s: %w", owner, err)
			errs = append(errs, err)
		}
		return &pattern{src: src, re: re, err: err}
	}
	mkNear := func(owner string, n *NearConfig) *proximity {
		if n == nil || n.Pattern == "" {
			return nil
		}
		w := n.Window
		if w <= 0 {
			w = defWin
		}
		return &proximity{pat: mk(owner, n.Pattern), window: w}
	}

	for _, a := range c.Anchors {
		rs.anchors = append(rs.anchors, &compiledAnchor{
			cfg:  a,
			pat:  mk(a.ID, a.Pattern),
			near: mkNear(a.ID, a.Near),
		})
	}
	for _, b := range c.Blockers {
		rs.blockers = append(rs.blockers, &compiledBlocker{
			cfg:        b,
			pat:        mk(b.ID, b.Pattern),
			near:       mkNear(b.ID, b.Near),
			unlessNear: mkNear(b.ID, b.UnlessNear),
		})
	}
	if strict && len(errs) > 0 {
		return nil, fmt.Errorf("compile relevance rules: %w", errs[0])
	}
	for cat := range c.Weights {
		rs.categories = append(rs.categories, cat)
	}
	sort.Strings(rs.categories)
	return rs, nil
}
