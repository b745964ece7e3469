package contextual

import (
	"embed"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

//go:embed ner/*.yaml
var defaultNER embed.FS

type nerFile struct {
	Patterns []struct {
		Regex   string `yaml:"regex"`
		Keyword string `yaml:"keyword"`
	} `yaml:"patterns"`
}

type nerRule struct {
	re      *regexp.Regexp
	keyword string
}

// NER maps keyword/entity patterns, grouped by category, to extra reasons of
// the form "category: keyword". It never changes scores.
type NER struct {
	mu   sync.Mutex // serializes writers
	sets atomic.Pointer[map[string][]nerRule]
}

func NewNER() *NER {
	n := &NER{}
	empty := map[string][]nerRule{}
	n.sets.Store(&empty)
	return n
}

// DefaultNER loads the embedded categories.
func DefaultNER() *NER {
	n := NewNER()
	entries, err := defaultNER.ReadDir("ner")
	if err != nil {
		panic(err)
	}
	for _, e := range entries {
		data, err := defaultNER.ReadFile(path.Join("ner", e.Name()))
		if err != nil {
			panic(err)
		}
		if err := n.SetCategory(CategoryFromFile(e.Name()), data); err != nil {
			panic(err)
		}
	}
	return n
}

// LoadNERDir reads every *.yaml file in dir as one category.
func LoadNERDir(dir string) (*NER, error) {
	n := NewNER()
	files, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list ner dir: %w", err)
	}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read ner file: %w", err)
		}
		if err := n.SetCategory(CategoryFromFile(f), data); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// CategoryFromFile turns "central_banks.yaml" into "central_banks".
func CategoryFromFile(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SetCategory replaces one category. A bad file leaves it unchanged.
func (n *NER) SetCategory(category string, data []byte) error {
	var f nerFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse ner %s: %w", category, err)
	}
	rules := make([]nerRule, 0, len(f.Patterns))
	for _, p := range f.Patterns {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return fmt.Errorf("ner %s: %w", category, err)
		}
		kw := p.Keyword
		if kw == "" {
			kw = p.Regex
		}
		rules = append(rules, nerRule{re: re, keyword: kw})
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	cur := *n.sets.Load()
	next := make(map[string][]nerRule, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	next[category] = rules
	n.sets.Store(&next)
	return nil
}

// Enrich returns sorted, de-duplicated reasons for text.
func (n *NER) Enrich(text string) []string {
	sets := *n.sets.Load()
	seen := map[string]struct{}{}
	var out []string
	for cat, rules := range sets {
		for _, r := range rules {
			if !r.re.MatchString(text) {
				continue
			}
			reason := cat + ": " + r.keyword
			if _, ok := seen[reason]; ok {
				continue
			}
			seen[reason] = struct{}{}
			out = append(out, reason)
		}
	}
	sort.Strings(out)
	return out
}
