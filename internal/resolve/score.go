package resolve

import (
	"math"
	"strings"
)

// minContainLen is the shortest string ContainsEitherDirection will consider.
const minContainLen = 4

// ContainsEitherDirection reports whether a contains b or b contains a.
// Strings shorter than four bytes never match.
func ContainsEitherDirection(a, b string) bool {
	if len(a) < minContainLen || len(b) < minContainLen {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// TokenOverlap returns |A∩B| / max(|A|, |B|) over the token sets of the
// normalized inputs. The larger set is the denominator, so a short name
// fully contained in a long one still scores low.
func TokenOverlap(a, b string) float64 {
	aTokens := tokenSet(Normalize(a))
	bTokens := tokenSet(Normalize(b))
	if len(aTokens) == 0 || len(bTokens) == 0 {
		return 0
	}

	var intersection int
	for tok := range aTokens {
		if _, ok := bTokens[tok]; ok {
			intersection++
		}
	}
	return float64(intersection) / float64(max(len(aTokens), len(bTokens)))
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// round2 rounds to two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
