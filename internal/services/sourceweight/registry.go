// Package sourceweight resolves statement sources to credibility weights.
package sourceweight

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"NewsSignal/internal/domain/models"
)

// DefaultWeight applies to sources that match nothing in the table.
const DefaultWeight = 0.60

//go:embed source_weights.yaml
var defaultTable []byte

type fileFormat struct {
	DefaultWeight *float64                       `yaml:"default_weight"`
	Sources       map[string]models.SourceWeight `yaml:"sources"`
}

// Table is one immutable snapshot of the weight map.
type Table struct {
	defaultWeight float64
	canonical     map[string]models.SourceWeight
	aliases       map[string]string
	// canonical names longest first, for substring matching
	byLength []string
}

// Match explains how a source resolved.
type Match struct {
	Canonical string  `json:"canonical,omitempty"`
	Weight    float64 `json:"weight"`
	Via       string  `json:"via"` // exact | alias | substring | default
}

// ParseTable decodes YAML into a Table. Weights are clamped to [0,1]; an
// alias pointing at two canonical names is an error.
func ParseTable(data []byte) (*Table, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse source weights: %w", err)
	}
	def := DefaultWeight
	if f.DefaultWeight != nil {
		def = clamp01(*f.DefaultWeight)
	}
	t := &Table{
		defaultWeight: def,
		canonical:     make(map[string]models.SourceWeight, len(f.Sources)),
		aliases:       make(map[string]string),
	}
	for name, sw := range f.Sources {
		canon := Normalize(name)
		if canon == "" {
			return nil, fmt.Errorf("parse source weights: empty source name")
		}
		sw.CanonicalName = canon
		sw.Weight = clamp01(sw.Weight)
		t.canonical[canon] = sw
		t.byLength = append(t.byLength, canon)
	}
	for canon, sw := range t.canonical {
		for _, a := range sw.Aliases {
			na := Normalize(a)
			if na == "" || na == canon {
				continue
			}
			if prev, ok := t.aliases[na]; ok && prev != canon {
				return nil, fmt.Errorf("parse source weights: alias %q maps to both %q and %q", a, prev, canon)
			}
			t.aliases[na] = canon
		}
	}
	sort.Slice(t.byLength, func(i, j int) bool {
		if len(t.byLength[i]) != len(t.byLength[j]) {
			return len(t.byLength[i]) > len(t.byLength[j])
		}
		return t.byLength[i] < t.byLength[j]
	})
	return t, nil
}

// Registry holds the current Table behind an atomic pointer so readers
// always see one complete snapshot.
type Registry struct {
	table atomic.Pointer[Table]
}

// New returns a registry seeded with t, or with the embedded table if nil.
func New(t *Table) *Registry {
	if t == nil {
		var err error
		if t, err = ParseTable(defaultTable); err != nil {
			panic(err)
		}
	}
	r := &Registry{}
	r.table.Store(t)
	return r
}

// Replace swaps the whole table.
func (r *Registry) Replace(t *Table) {
	if t != nil {
		r.table.Store(t)
	}
}

// Reload parses data and swaps it in; the old table stays on error.
func (r *Registry) Reload(data []byte) error {
	t, err := ParseTable(data)
	if err != nil {
		return err
	}
	r.Replace(t)
	return nil
}

// Resolve returns the weight for a source name.
func (r *Registry) Resolve(source string) float64 {
	return r.Lookup(source).Weight
}

// Lookup resolves a source: exact canonical name, then alias, then a
// canonical name contained as whole words, then the default weight.
func (r *Registry) Lookup(source string) Match {
	t := r.table.Load()
	s := Normalize(source)
	if s == "" {
		return Match{Weight: t.defaultWeight, Via: "default"}
	}
	if sw, ok := t.canonical[s]; ok {
		return Match{Canonical: s, Weight: sw.Weight, Via: "exact"}
	}
	if canon, ok := t.aliases[s]; ok {
		return Match{Canonical: canon, Weight: t.canonical[canon].Weight, Via: "alias"}
	}
	padded := " " + s + " "
	for _, canon := range t.byLength {
		if strings.Contains(padded, " "+canon+" ") {
			return Match{Canonical: canon, Weight: t.canonical[canon].Weight, Via: "substring"}
		}
	}
	return Match{Weight: t.defaultWeight, Via: "default"}
}

// Size reports how many canonical sources are loaded.
func (r *Registry) Size() int { return len(r.table.Load().canonical) }

// Normalize lower-cases, turns dashes and punctuation into spaces and
// collapses whitespace. A leading '@' handle marker is kept.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	handle := strings.HasPrefix(s, "@")
	s = strings.Map(func(r rune) rune {
		switch r {
		case '—', '–', '-', '_', '/', '\\', '.', ',', '\'', '’', '"', ':', ';', '(', ')', '@':
			return ' '
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")
	if handle && s != "" {
		s = "@" + s
	}
	return s
}

func clamp01(x float64) float64 {
	return min(max(x, 0), 1)
}
