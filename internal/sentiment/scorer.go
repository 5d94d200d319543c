// Package sentiment implements the in-process sentiment scorer. It is a
// deterministic valence-lexicon model: for a fixed model version the same
// normalized text always produces the same score and confidence, which is
// what makes caching and re-aggregation safe.
package sentiment

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/pscheid92/brandpulse/internal/domain"
	"github.com/pscheid92/brandpulse/internal/fingerprint"
)

// modelVersion changes whenever the lexicon or the scoring math changes.
// Old ScoredItems keep their version; re-scoring creates new ones.
const modelVersion = "lexicon-en-v1"

// LexiconScorer scores text with the embedded valence lexicon. The zero
// value is not usable; create it with NewLexiconScorer.
type LexiconScorer struct{}

// NewLexiconScorer creates the lexicon scorer.
func NewLexiconScorer() *LexiconScorer {
	return &LexiconScorer{}
}

// ModelVersion implements domain.Scorer.
func (s *LexiconScorer) ModelVersion() string {
	return modelVersion
}

// Score implements domain.Scorer. It returns domain.ErrScoringFailed for
// text that normalizes to nothing scoreable (empty, URLs only, no letters).
func (s *LexiconScorer) Score(_ context.Context, text string) (float64, float64, error) {
	normalized := fingerprint.Normalize(text)
	tokens := tokenize(normalized)
	if len(tokens) == 0 {
		return 0, 0, fmt.Errorf("empty or non-lexical text: %w", domain.ErrScoringFailed)
	}

	var (
		total float64
		hits  int
	)
	for i, tok := range tokens {
		polarity, ok := valence[tok]
		if !ok {
			continue
		}
		hits++

		weight := 1.0
		if i > 0 {
			if factor, ok := intensity[tokens[i-1]]; ok {
				weight = factor
			}
		}
		if negated(tokens, i) {
			polarity = -polarity
		}
		total += polarity * weight
	}

	if hits == 0 {
		// No lexicon coverage: a valid neutral observation, not a failure.
		return 0, 0, nil
	}

	// Dampen by hit count so one strong word in a long rant does not pin
	// the score to its raw polarity, then clamp to [-1, 1].
	score := total / math.Sqrt(float64(hits))
	score = math.Max(-1, math.Min(1, score))

	// Confidence grows with lexicon coverage of the text.
	confidence := math.Min(1, float64(hits)/math.Sqrt(float64(len(tokens))))

	return score, confidence, nil
}

// negated reports whether a negator appears in the two tokens before i.
func negated(tokens []string, i int) bool {
	for j := max(0, i-2); j < i; j++ {
		if negators[tokens[j]] {
			return true
		}
	}
	return false
}

func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}
