package sentiment

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed lexicon.yaml
var defaultLexicon []byte

// Lexicon maps lower-cased words to signed weights.
type Lexicon struct {
	Version int            `yaml:"version"`
	Words   map[string]int `yaml:"words"`
}

// ParseLexicon decodes a YAML lexicon. Keys are lower-cased; zero weights
// are dropped.
func ParseLexicon(data []byte) (*Lexicon, error) {
	var raw Lexicon
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse lexicon: %w", err)
	}
	if len(raw.Words) == 0 {
		return nil, fmt.Errorf("parse lexicon: no words")
	}
	lx := &Lexicon{Version: raw.Version, Words: make(map[string]int, len(raw.Words))}
	for w, v := range raw.Words {
		if v == 0 {
			continue
		}
		lx.Words[strings.ToLower(strings.TrimSpace(w))] = v
	}
	return lx, nil
}

// DefaultLexicon returns the embedded lexicon.
func DefaultLexicon() *Lexicon {
	lx, err := ParseLexicon(defaultLexicon)
	if err != nil {
		panic(err)
	}
	return lx
}
