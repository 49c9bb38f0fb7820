// Package resolve links registered programs to organizations and ALMA
// interventions using deterministic name matching.
package resolve

import (
	"regexp"
	"strings"
)

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

// Normalize standardizes a name for matching by:
//  1. Converting to lowercase
//  2. Replacing "&" with " and "
//  3. Replacing every run of non [a-z0-9] characters with a single space
//  4. Trimming
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "&", " and ")
	s = nonAlnumRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Normalizer computes core names against an injected stopword set.
// It is immutable after construction and safe for concurrent use.
type Normalizer struct {
	stopwords map[string]struct{}
}

// NewNormalizer creates a Normalizer. Stopwords are normalized before use.
func NewNormalizer(stopwords []string) *Normalizer {
	set := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		if w = Normalize(w); w != "" {
			set[w] = struct{}{}
		}
	}
	return &Normalizer{stopwords: set}
}

// Normalize is a convenience wrapper over the package-level Normalize.
func (n *Normalizer) Normalize(s string) string {
	return Normalize(s)
}

// CoreName returns the normalized name with stopword tokens removed.
func (n *Normalizer) CoreName(s string) string {
	base := Normalize(s)
	if base == "" {
		return ""
	}
	tokens := strings.Fields(base)
	kept := tokens[:0]
	for _, tok := range tokens {
		if _, stop := n.stopwords[tok]; !stop {
			kept = append(kept, tok)
		}
	}
	return strings.Join(kept, " ")
}
