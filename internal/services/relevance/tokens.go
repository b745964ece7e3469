package relevance

import (
	"regexp"
	"sort"
	"strings"
)

var (
	wordRe    = regexp.MustCompile(`\w+`)
	cashtagRe = regexp.MustCompile(`\$([A-Za-z]{1,5})\b`)
	hashtagRe = regexp.MustCompile(`#([A-Za-z0-9_]+)`)
)

// tokenIndex holds the end offsets of word tokens, in order. A regex match
// is attributed to the first token ending after the match start.
type tokenIndex []int

func indexTokens(text string) tokenIndex {
	spans := wordRe.FindAllStringIndex(text, -1)
	ends := make(tokenIndex, len(spans))
	for i, s := range spans {
		ends[i] = s[1]
	}
	return ends
}

func (t tokenIndex) tokenAt(offset int) (int, bool) {
	i := sort.SearchInts(t, offset+1)
	if i >= len(t) {
		return 0, false
	}
	return i, true
}

func (t tokenIndex) matchIndices(re *regexp.Regexp, text string) []int {
	locs := re.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	out := make([]int, 0, len(locs))
	for _, loc := range locs {
		if i, ok := t.tokenAt(loc[0]); ok {
			out = append(out, i)
		}
	}
	return out
}

func withinWindow(a, b []int, window int) bool {
	for _, x := range a {
		for _, y := range b {
			d := x - y
			if d < 0 {
				d = -d
			}
			if d <= window {
				return true
			}
		}
	}
	return false
}

// Cashtags returns upper-cased $TICKER symbols, sorted and unique.
func Cashtags(text string) []string {
	return collect(cashtagRe, text, strings.ToUpper)
}

// Hashtags returns lower-cased #tags, sorted and unique.
func Hashtags(text string) []string {
	return collect(hashtagRe, text, strings.ToLower)
}

func collect(re *regexp.Regexp, text string, fold func(string) string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		v := fold(m[1])
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
