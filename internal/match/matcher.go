package match

import (
	"strings"

	"voicecmd/internal/domain"
)

// Matcher finds the best-matching configured command for a transcript. It is
// pure with respect to external state: the command set is fixed at
// construction and never mutated.
type Matcher struct {
	specs     []domain.CommandSpec
	threshold float64
}

func NewMatcher(specs []domain.CommandSpec, threshold float64) *Matcher {
	return &Matcher{specs: specs, threshold: threshold}
}

// Match scores the transcript against every (spec, phrase) pair and returns
// the single best candidate at or above the threshold, or nil when nothing
// qualifies. Nil is an expected outcome, not an error. Ties resolve to the
// earliest-configured spec: only a strictly better score displaces the
// current best.
func (m *Matcher) Match(transcript string) *domain.MatchResult {
	text := Normalize(transcript)
	if text == "" {
		return nil
	}

	var best *domain.MatchResult

	for i := range m.specs {
		spec := &m.specs[i]
		for _, phrase := range spec.Phrases {
			score, params := scorePhrase(phrase, text)
			if best == nil || score > best.Score {
				best = &domain.MatchResult{
					Spec:       spec,
					Phrase:     phrase,
					Score:      score,
					Parameters: params,
				}
			}
		}
	}

	if best == nil || best.Score < m.threshold {
		return nil
	}
	return best
}

// scorePhrase rates one phrase template against normalized transcript text.
// Placeholders are stripped before fuzzy scoring so un-spoken marker text
// does not depress the score; a template whose compiled parameter pattern
// matches the transcript outright is a perfect match.
func scorePhrase(phrase, text string) (float64, map[string]string) {
	literal := StripPlaceholders(phrase)
	score := similarity(text, literal)

	if strings.Contains(phrase, "{") {
		if params := ExtractParams(phrase, text); len(params) > 0 {
			return 1.0, params
		}
	}

	return score, map[string]string{}
}
