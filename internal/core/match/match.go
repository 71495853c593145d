// Package match provides title fingerprinting and fuzzy comparison used by
// the cache keys, the DOI probe, and every backend's result scoring
package match

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Similarity thresholds. The strict threshold gates verification; the
// lenient one is only for web-search evidence where we just need to
// confirm the paper exists somewhere.
const (
	strictRatio  = 0.95
	lenientRatio = 0.85

	prefixMinLen    = 8
	substringMinLen = 20
	lenientSubstr   = 15
)

// Fingerprint normalizes a title into the canonical comparison key:
// diacritics folded, lowercased, everything but [a-z0-9] stripped.
// Distinct titles with identical fingerprints collide by design.
func Fingerprint(title string) string {
	// Chained transformers carry state; build one per call so concurrent
	// workers don't share buffers
	deaccent := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(deaccent, title)
	if err != nil {
		folded = title
	}
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Ratio is the normalized Levenshtein similarity of two strings in [0,1]
func Ratio(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	max := len([]rune(a))
	if l := len([]rune(b)); l > max {
		max = l
	}
	return 1 - float64(dist)/float64(max)
}

// TitlesMatch reports whether a found title is close enough to the
// reference title to count as the same paper
func TitlesMatch(refTitle, foundTitle string) bool {
	rn := Fingerprint(refTitle)
	fn := Fingerprint(foundTitle)
	if rn == "" || fn == "" {
		return false
	}
	if rn == fn {
		return true
	}
	if Ratio(rn, fn) >= strictRatio {
		return true
	}
	// Found title as prefix of the reference handles dropped subtitles
	if len(fn) >= prefixMinLen && strings.HasPrefix(rn, fn) {
		return true
	}
	if len(fn) >= substringMinLen && (strings.Contains(rn, fn) || strings.Contains(fn, rn)) {
		return true
	}
	return false
}

// TitlesMatchLenient is the web-search variant: lower ratio threshold and
// substring containment, to cope with "Date Title - Venue" result pages
func TitlesMatchLenient(refTitle, foundTitle string) bool {
	rn := Fingerprint(refTitle)
	fn := Fingerprint(foundTitle)
	if rn == "" || fn == "" {
		return false
	}
	if rn == fn {
		return true
	}
	if Ratio(rn, fn) >= lenientRatio {
		return true
	}
	if len(rn) >= lenientSubstr && strings.Contains(fn, rn) {
		return true
	}
	if len(fn) >= lenientSubstr && strings.Contains(rn, fn) {
		return true
	}
	return false
}

var wordRe = regexp.MustCompile(`[a-zA-Z0-9]+(?:['\x{2019}\x{2018}-][a-zA-Z0-9]+)*`)

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {}, "that": {},
	"this": {}, "have": {}, "are": {}, "was": {}, "were": {}, "been": {},
	"being": {}, "has": {}, "had": {}, "does": {}, "did": {}, "will": {},
	"would": {}, "could": {}, "should": {}, "may": {}, "might": {},
	"must": {}, "shall": {}, "can": {}, "not": {}, "but": {}, "its": {},
	"our": {}, "their": {}, "your": {}, "into": {}, "over": {}, "under": {},
	"about": {}, "between": {}, "through": {}, "during": {}, "before": {},
	"after": {}, "above": {}, "below": {}, "each": {}, "every": {},
	"both": {}, "few": {}, "more": {}, "most": {}, "other": {}, "some": {},
	"such": {}, "only": {}, "than": {}, "too": {}, "very": {},
}

const maxQueryWords = 6

// QueryWords extracts the distinctive search terms from a title: words of
// 4+ chars with stop words removed, capped at the 6 highest-scoring by
// length, capitalization, acronym shape, and position.
func QueryWords(title string) []string {
	// Strip BibTeX capitalization braces
	title = strings.NewReplacer("{", "", "}", "").Replace(title)

	type word struct {
		orig  string
		lower string
		pos   int
	}
	var words []word
	pos := 0
	for _, m := range wordRe.FindAllString(title, -1) {
		for _, part := range strings.Split(m, "-") {
			lower := strings.ToLower(part)
			if len(lower) >= 4 {
				if _, stop := stopWords[lower]; !stop {
					words = append(words, word{orig: part, lower: lower, pos: pos})
				}
			}
			pos++
		}
	}

	if len(words) <= maxQueryWords {
		out := make([]string, len(words))
		for i, w := range words {
			out[i] = w.lower
		}
		return out
	}

	type scored struct {
		word
		score float64
	}
	sc := make([]scored, len(words))
	for i, w := range words {
		s := float64(len(w.lower))
		if r := rune(w.orig[0]); r >= 'A' && r <= 'Z' {
			s += 10
		}
		if len(w.orig) >= 3 && isAcronym(w.orig) {
			s += 5
		}
		s -= float64(w.pos) * 0.5
		sc[i] = scored{word: w, score: s}
	}
	// Top N by score, re-emitted in title order
	for i := 0; i < maxQueryWords; i++ {
		best := i
		for j := i + 1; j < len(sc); j++ {
			if sc[j].score > sc[best].score {
				best = j
			}
		}
		sc[i], sc[best] = sc[best], sc[i]
	}
	top := sc[:maxQueryWords]
	for i := 0; i < len(top); i++ {
		for j := i + 1; j < len(top); j++ {
			if top[j].pos < top[i].pos {
				top[i], top[j] = top[j], top[i]
			}
		}
	}
	out := make([]string, len(top))
	for i, w := range top {
		out[i] = w.lower
	}
	return out
}

func isAcronym(s string) bool {
	for _, r := range s {
		if !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
