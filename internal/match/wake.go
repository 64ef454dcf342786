package match

import (
	"strings"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
)

// Gate decides whether a finalized transcript contains a wake phrase. The
// orchestrator only consults it while idle; alternative strategies (exact
// match, a classifier) can be swapped in without touching the loop.
type Gate interface {
	Detect(text string) bool
}

// FuzzyGate matches transcripts against wake words with fuzzy scoring.
// Exact substring containment short-circuits to a perfect score.
type FuzzyGate struct {
	wakeWords []string
	threshold float64
}

func NewFuzzyGate(wakeWords []string, threshold float64) *FuzzyGate {
	normalized := make([]string, 0, len(wakeWords))
	for _, w := range wakeWords {
		normalized = append(normalized, Normalize(w))
	}
	return &FuzzyGate{wakeWords: normalized, threshold: threshold}
}

func (g *FuzzyGate) Detect(text string) bool {
	text = Normalize(text)
	if text == "" {
		return false
	}

	for _, wake := range g.wakeWords {
		if strings.Contains(text, wake) {
			return true
		}
		if similarity(text, wake) >= g.threshold {
			return true
		}
	}
	return false
}

// similarity scores two normalized strings in [0,1]. Token-set scoring
// tolerates word reordering, partial scoring tolerates surrounding filler;
// the better of the two wins.
func similarity(a, b string) float64 {
	tokenSet := fuzzy.TokenSetRatio(a, b)
	partial := fuzzy.PartialRatio(a, b)
	best := tokenSet
	if partial > best {
		best = partial
	}
	return float64(best) / 100.0
}
