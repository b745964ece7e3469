package sentiment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsSignal/internal/domain/models"
)

func TestNegationFlipsSign(t *testing.T) {
	s := NewScorer(nil)

	good := s.Score("good")
	notGood := s.Score("not good")

	assert.Greater(t, good.RawScore, 0)
	assert.LessOrEqual(t, notGood.RawScore, 0)
	assert.Equal(t, []string{"good"}, notGood.NegatedTokens)
	assert.Equal(t, models.LabelNegative, notGood.Label)
}

func TestNegationWindow(t *testing.T) {
	s := NewScorer(nil)

	cases := []struct {
		text string
		want int
	}{
		{"never a good day", -1},     // negator 2 tokens back
		{"no, really, very good", -1}, // 3 tokens back
		{"no one would say it is good", 1},
		{"it isn't strong", -2},
		{"it isn’t strong", -2},
		{"stocks rally", 2},
		{"markets tumble and slide", -3},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			assert.Equal(t, tc.want, s.Score(tc.text).RawScore)
		})
	}
}

func TestScoreCountsTokensAndLabels(t *testing.T) {
	s := NewScorer(nil)

	r := s.Score("The Fed meets on Tuesday.")
	assert.Equal(t, 0, r.RawScore)
	assert.Equal(t, 5, r.TokenCount)
	assert.Equal(t, models.LabelNeutral, r.Label)
	assert.Empty(t, r.NegatedTokens)

	r = s.Score("ISM manufacturing dips below 50; the Dow slips.")
	assert.Equal(t, -2, r.RawScore)
	assert.Equal(t, models.LabelNegative, r.Label)
}

func TestReloadKeepsOldLexiconOnError(t *testing.T) {
	s := NewScorer(nil)
	require.Error(t, s.Reload([]byte("words: [")))
	assert.Greater(t, s.Score("good").RawScore, 0)

	require.NoError(t, s.Reload([]byte("version: 9\nwords:\n  Moon: 3\n")))
	assert.Equal(t, 9, s.Version())
	assert.Equal(t, 3, s.Score("to the moon").RawScore)
	assert.Equal(t, 0, s.Score("good").RawScore)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"don't", "panic", "s", "p", "500"}, Tokenize("'Don't' panic: S&P-500!"))
	assert.Empty(t, Tokenize("  ...  "))
}
