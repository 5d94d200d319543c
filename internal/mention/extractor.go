// Package mention confirms that item text actually references the target
// entity. The matcher favors precision over recall: a missed mention only
// loses one data point, a false accept pollutes the aggregate.
package mention

import (
	"strings"
	"unicode"

	"github.com/pscheid92/brandpulse/internal/domain"
)

// Extractor matches an entity name and its known aliases at token
// boundaries. Matching is case-insensitive and rejects occurrences inside
// larger words and inside URLs.
type Extractor struct {
	aliases map[string][]string
}

// NewExtractor creates an extractor with optional per-entity alias lists.
// Keys are entity queries (case-insensitive), values additional names that
// count as a mention of that entity.
func NewExtractor(aliases map[string][]string) *Extractor {
	normalized := make(map[string][]string, len(aliases))
	for entity, names := range aliases {
		key := strings.ToLower(strings.TrimSpace(entity))
		for _, n := range names {
			if n = strings.TrimSpace(n); n != "" {
				normalized[key] = append(normalized[key], strings.ToLower(n))
			}
		}
	}
	return &Extractor{aliases: normalized}
}

// Extract returns the byte span of the first confirmed mention of
// entityQuery (or one of its aliases) in text, or nil when no clean match
// exists.
func (e *Extractor) Extract(text, entityQuery string) *domain.MentionSpan {
	needle := strings.ToLower(strings.TrimSpace(entityQuery))
	if needle == "" || text == "" {
		return nil
	}

	candidates := append([]string{needle}, e.aliases[needle]...)
	haystack := strings.ToLower(text)

	for _, candidate := range candidates {
		if span := findTokenBounded(haystack, candidate); span != nil {
			return span
		}
	}
	return nil
}

// findTokenBounded scans for candidate occurrences that start and end on
// token boundaries and do not sit inside a URL.
func findTokenBounded(haystack, candidate string) *domain.MentionSpan {
	for from := 0; ; {
		idx := strings.Index(haystack[from:], candidate)
		if idx < 0 {
			return nil
		}
		start := from + idx
		end := start + len(candidate)
		from = start + 1

		if !boundaryBefore(haystack, start) || !boundaryAfter(haystack, end) {
			continue
		}
		if insideURL(haystack, start) {
			continue
		}
		return &domain.MentionSpan{Start: start, End: end}
	}
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	return !isWordByte(s[i-1])
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	return !isWordByte(s[i])
}

// isWordByte treats ASCII letters, digits and non-ASCII bytes as word
// characters, so "acme" never matches inside "macmenu" or "acmeify".
func isWordByte(b byte) bool {
	if b >= 0x80 {
		return true
	}
	r := rune(b)
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// insideURL reports whether position i falls inside an http(s)/www token.
func insideURL(s string, i int) bool {
	tokenStart := i
	for tokenStart > 0 && !unicode.IsSpace(rune(s[tokenStart-1])) {
		tokenStart--
	}
	token := s[tokenStart:]
	return strings.HasPrefix(token, "http://") ||
		strings.HasPrefix(token, "https://") ||
		strings.HasPrefix(token, "www.")
}
