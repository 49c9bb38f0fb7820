package resolve

import (
	"sort"

	"github.com/sells-group/alma-cli/internal/model"
)

// scoreEpsilon absorbs float error when comparing score gaps.
const scoreEpsilon = 1e-9

// OrgMatch is an accepted organization resolution.
type OrgMatch struct {
	ProgramID      string      `json:"program_id"`
	OrganizationID string      `json:"organization_id"`
	Method         MatchMethod `json:"method"`
	Score          float64     `json:"score"`
}

// OrgReview is a program whose organization could not be resolved.
type OrgReview struct {
	ProgramID    string `json:"program_id"`
	Organization string `json:"organization"`
}

type orgEntry struct {
	org      model.Organization
	fullName string
	coreName string
	slug     string
	coreSlug string
}

type orgCandidate struct {
	org    model.Organization
	score  float64
	method MatchMethod
	rank   int
}

// OrgMatcher resolves free-text organization names to Organization rows.
type OrgMatcher struct {
	norm    *Normalizer
	th      Thresholds
	byAlias map[string][]model.Organization
	index   []orgEntry
}

// NewOrgMatcher builds the alias index and candidate index over orgs.
func NewOrgMatcher(orgs []model.Organization, norm *Normalizer, th Thresholds) *OrgMatcher {
	m := &OrgMatcher{
		norm:    norm,
		th:      th,
		byAlias: make(map[string][]model.Organization),
		index:   make([]orgEntry, 0, len(orgs)),
	}

	for _, org := range orgs {
		e := orgEntry{
			org:      org,
			fullName: Normalize(org.Name),
			coreName: norm.CoreName(org.Name),
			slug:     Normalize(org.Slug),
			coreSlug: norm.CoreName(org.Slug),
		}
		for _, alias := range []string{e.fullName, e.coreName, e.slug, e.coreSlug} {
			m.addAlias(alias, org)
		}
		m.index = append(m.index, e)
	}

	return m
}

func (m *OrgMatcher) addAlias(alias string, org model.Organization) {
	if alias == "" {
		return
	}
	m.byAlias[alias] = append(m.byAlias[alias], org)
}

// Match resolves organization text. It returns false when the text is
// empty, nothing scores, or the top candidates are too close to call.
func (m *OrgMatcher) Match(text string) (model.Organization, MatchMethod, float64, bool) {
	full := Normalize(text)
	core := m.norm.CoreName(text)
	if full == "" {
		return model.Organization{}, "", 0, false
	}

	// Direct alias lookup.
	direct := make(map[string]model.Organization)
	var directOrder []string
	for _, key := range []string{full, core} {
		if key == "" {
			continue
		}
		for _, org := range m.byAlias[key] {
			if _, seen := direct[org.ID]; !seen {
				direct[org.ID] = org
				directOrder = append(directOrder, org.ID)
			}
		}
	}
	if len(directOrder) == 1 {
		return direct[directOrder[0]], MethodOrgAliasExact, scoreOrgAliasExact, true
	}

	top, ok := pickTop(m.rank(full, core), m.th)
	if !ok {
		return model.Organization{}, "", 0, false
	}
	return top.org, top.method, top.score, true
}

// pickTop applies the accept and margin rules to ranked candidates.
func pickTop(ranked []orgCandidate, th Thresholds) (orgCandidate, bool) {
	if len(ranked) == 0 {
		return orgCandidate{}, false
	}
	top := ranked[0]
	if top.score < th.OrgAccept {
		return orgCandidate{}, false
	}
	if len(ranked) > 1 && top.score-ranked[1].score < th.OrgMargin-scoreEpsilon {
		return orgCandidate{}, false
	}
	return top, true
}

// rank scores every organization against the program's full and core
// forms and returns the best candidate per organization, highest first.
func (m *OrgMatcher) rank(full, core string) []orgCandidate {
	best := make(map[string]orgCandidate)

	for i, e := range m.index {
		c, ok := m.score(e, full, core)
		if !ok {
			continue
		}
		c.rank = i
		if prev, seen := best[e.org.ID]; !seen || c.score > prev.score {
			best[e.org.ID] = c
		}
	}

	ranked := make([]orgCandidate, 0, len(best))
	for _, c := range best {
		ranked = append(ranked, c)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].rank < ranked[j].rank
	})
	return ranked
}

func (m *OrgMatcher) score(e orgEntry, full, core string) (orgCandidate, bool) {
	if matchesAny(full, e.fullName, e.slug) || matchesAny(core, e.coreName, e.coreSlug) {
		return orgCandidate{org: e.org, score: scoreOrgAliasExact, method: MethodOrgAliasExact}, true
	}
	if ContainsEitherDirection(full, e.fullName) || ContainsEitherDirection(full, e.slug) {
		return orgCandidate{org: e.org, score: scoreOrgAliasContains, method: MethodOrgAliasContains}, true
	}
	if ContainsEitherDirection(core, e.coreName) || ContainsEitherDirection(core, e.coreSlug) {
		return orgCandidate{org: e.org, score: scoreOrgCoreContains, method: MethodOrgCoreContains}, true
	}

	overlap := max(TokenOverlap(core, e.coreName), TokenOverlap(core, e.coreSlug))
	if overlap >= m.th.OrgCoreOverlap {
		return orgCandidate{org: e.org, score: round2(overlap), method: MethodOrgCoreOverlap}, true
	}
	return orgCandidate{}, false
}

// matchesAny reports whether s is non-empty and equals one of the candidates.
func matchesAny(s string, candidates ...string) bool {
	if s == "" {
		return false
	}
	for _, c := range candidates {
		if c != "" && c == s {
			return true
		}
	}
	return false
}
