// Package fingerprint derives stable content fingerprints from normalized
// item text. Items that normalize to the same text within one source share a
// fingerprint and are treated as the same underlying content.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/pscheid92/brandpulse/internal/domain"
)

var (
	urlPattern        = regexp.MustCompile(`https?://\S+|www\.\S+`)
	handleTagPattern  = regexp.MustCompile(`[@#]\w+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Normalize lowercases text, strips URLs, @handles and #tags, and collapses
// whitespace. Two texts that normalize equal are considered the same
// content for dedup and scoring purposes.
func Normalize(text string) string {
	text = strings.ToLower(text)
	text = urlPattern.ReplaceAllString(text, " ")
	text = handleTagPattern.ReplaceAllString(text, " ")
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// New builds the fingerprint for an item: the first 128 bits of
// SHA-256(source_id + "\n" + normalized text), hex encoded. 128 bits keeps
// the accidental collision probability negligible while staying compact as
// a store key.
func New(sourceID, text string) domain.Fingerprint {
	sum := sha256.Sum256([]byte(sourceID + "\n" + Normalize(text)))
	return domain.Fingerprint(hex.EncodeToString(sum[:16]))
}
