package sentiment

import (
	"strings"
	"sync/atomic"
	"unicode"

	"NewsSignal/internal/domain/models"
)

// NegationWindow is how many preceding tokens are searched for a negator.
const NegationWindow = 3

var negators = map[string]struct{}{
	"not": {}, "no": {}, "never": {}, "without": {}, "cannot": {}, "hardly": {},
	"isn't": {}, "wasn't": {}, "aren't": {}, "won't": {}, "can't": {},
	"don't": {}, "doesn't": {}, "didn't": {},
}

// Scorer is a lexicon scorer with negation handling. The lexicon can be
// swapped atomically; scoring itself is pure.
type Scorer struct {
	lex atomic.Pointer[Lexicon]
}

func NewScorer(lx *Lexicon) *Scorer {
	if lx == nil {
		lx = DefaultLexicon()
	}
	s := &Scorer{}
	s.lex.Store(lx)
	return s
}

// Reload parses data and swaps the lexicon. On error the old one stays.
func (s *Scorer) Reload(data []byte) error {
	lx, err := ParseLexicon(data)
	if err != nil {
		return err
	}
	s.lex.Store(lx)
	return nil
}

func (s *Scorer) Version() int { return s.lex.Load().Version }

// Score tokenizes text and sums lexicon weights, flipping a token's sign
// when a negator appears within the previous NegationWindow tokens.
func (s *Scorer) Score(text string) models.SentimentResult {
	lx := s.lex.Load()
	tokens := Tokenize(text)
	res := models.SentimentResult{TokenCount: len(tokens)}

	for i, tok := range tokens {
		base, ok := lx.Words[tok]
		if !ok {
			continue
		}
		if negated(tokens, i) {
			base = -base
			res.NegatedTokens = append(res.NegatedTokens, tok)
		}
		res.RawScore += base
	}

	switch {
	case res.RawScore > 0:
		res.Label = models.LabelPositive
	case res.RawScore < 0:
		res.Label = models.LabelNegative
	default:
		res.Label = models.LabelNeutral
	}
	return res
}

func negated(tokens []string, i int) bool {
	for k := 1; k <= NegationWindow && i-k >= 0; k++ {
		if _, ok := negators[tokens[i-k]]; ok {
			return true
		}
	}
	return false
}

// Tokenize splits on anything that is not a letter, digit or apostrophe and
// lower-cases the result. Curly apostrophes are folded to ASCII.
func Tokenize(text string) []string {
	text = strings.ReplaceAll(text, "’", "'")
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.Trim(f, "'"); f != "" {
			out = append(out, f)
		}
	}
	return out
}
