package resolve

import (
	"github.com/sells-group/alma-cli/internal/model"
)

// Strategy is one step of the intervention cascade. It returns a
// decision, or nil when it has nothing to offer for the program.
type Strategy struct {
	Name string
	Fn   func(m *InterventionMatcher, p model.Program) *LinkDecision
}

// InterventionMatcher runs the intervention cascade for programs.
// It tracks back-references in memory so that claims made earlier in a
// run are respected by later programs. Not safe for concurrent use.
type InterventionMatcher struct {
	norm       *Normalizer
	th         Thresholds
	overrides  *OverrideRegistry
	strategies []Strategy

	refs   []model.InterventionRef
	byID   map[string]int
	byName map[string][]int
	linked map[string]string // intervention id -> program id
}

// NewInterventionMatcher indexes refs by id and normalized name.
// Refs should be in a stable order; overlap ties go to the earliest ref.
func NewInterventionMatcher(refs []model.InterventionRef, norm *Normalizer, th Thresholds, overrides *OverrideRegistry) *InterventionMatcher {
	m := &InterventionMatcher{
		norm:       norm,
		th:         th,
		overrides:  overrides,
		strategies: DefaultStrategies(),
		refs:       refs,
		byID:       make(map[string]int, len(refs)),
		byName:     make(map[string][]int),
		linked:     make(map[string]string),
	}

	for i, ref := range refs {
		m.byID[ref.ID] = i
		if key := Normalize(ref.Name); key != "" {
			m.byName[key] = append(m.byName[key], i)
		}
		if ref.LinkedCommunityProgramID != nil && *ref.LinkedCommunityProgramID != "" {
			m.linked[ref.ID] = *ref.LinkedCommunityProgramID
		}
	}

	return m
}

// DefaultStrategies returns the cascade in priority order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "manual_override", Fn: (*InterventionMatcher).matchOverride},
		{Name: string(MethodNameExact), Fn: (*InterventionMatcher).matchNameExact},
		{Name: string(MethodNameAndOrgExact), Fn: (*InterventionMatcher).matchNameAndOrg},
		{Name: string(MethodNameTokenOverlap), Fn: (*InterventionMatcher).matchTokenOverlap},
		{Name: "organization_anchor", Fn: (*InterventionMatcher).matchOrgAnchor},
	}
}

// Match runs the cascade and returns the first decision whose target is
// not linked to a different program, or nil.
func (m *InterventionMatcher) Match(p model.Program) *LinkDecision {
	for _, s := range m.strategies {
		d := s.Fn(m, p)
		if d == nil {
			continue
		}
		if m.linkedElsewhere(d.AlmaInterventionID, p.ID) {
			continue
		}
		return d
	}
	return nil
}

// Claim records that programID now holds the intervention's back-reference.
// An existing claim is never replaced.
func (m *InterventionMatcher) Claim(interventionID, programID string) {
	if _, ok := m.linked[interventionID]; !ok {
		m.linked[interventionID] = programID
	}
}

// LinkedTo returns the program currently holding the intervention's back-reference.
func (m *InterventionMatcher) LinkedTo(interventionID string) (string, bool) {
	pid, ok := m.linked[interventionID]
	return pid, ok
}

func (m *InterventionMatcher) linkedElsewhere(interventionID, programID string) bool {
	pid, ok := m.linked[interventionID]
	return ok && pid != programID
}

func (m *InterventionMatcher) decision(p model.Program, ref model.InterventionRef, method MatchMethod, confidence float64) *LinkDecision {
	return &LinkDecision{
		ProgramID:          p.ID,
		ProgramName:        p.Name,
		AlmaInterventionID: ref.ID,
		AlmaName:           ref.Name,
		MatchMethod:        method,
		Confidence:         confidence,
	}
}

func (m *InterventionMatcher) matchOverride(p model.Program) *LinkDecision {
	o, ok := m.overrides.Lookup(p.ID)
	if !ok {
		return nil
	}
	i, ok := m.byID[o.AlmaInterventionID]
	if !ok {
		return nil
	}
	if m.linkedElsewhere(o.AlmaInterventionID, p.ID) {
		return nil
	}
	d := m.decision(p, m.refs[i], MethodOrgAnchorSingle, o.Confidence)
	d.override = &o
	return d
}

func (m *InterventionMatcher) matchNameExact(p model.Program) *LinkDecision {
	matches := m.byName[Normalize(p.Name)]
	if len(matches) != 1 {
		return nil
	}
	return m.decision(p, m.refs[matches[0]], MethodNameExact, confidenceNameExact)
}

func (m *InterventionMatcher) matchNameAndOrg(p model.Program) *LinkDecision {
	matches := m.byName[Normalize(p.Name)]
	if len(matches) < 2 {
		return nil
	}
	org := Normalize(p.Organization)
	if org == "" {
		return nil
	}

	var hit []int
	for _, i := range matches {
		if Normalize(m.refs[i].OperatingOrganization) == org {
			hit = append(hit, i)
		}
	}
	if len(hit) != 1 {
		return nil
	}
	return m.decision(p, m.refs[hit[0]], MethodNameAndOrgExact, confidenceNameAndOrgExact)
}

func (m *InterventionMatcher) matchTokenOverlap(p model.Program) *LinkDecision {
	best := -1
	var bestScore float64
	for i, ref := range m.refs {
		if m.linkedElsewhere(ref.ID, p.ID) {
			continue
		}
		if score := TokenOverlap(p.Name, ref.Name); score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 || bestScore < m.th.NameOverlap {
		return nil
	}
	return m.decision(p, m.refs[best], MethodNameTokenOverlap, round2(bestScore))
}

func (m *InterventionMatcher) matchOrgAnchor(p model.Program) *LinkDecision {
	orgFull := Normalize(p.Organization)
	orgCore := m.norm.CoreName(p.Organization)

	var hit []int
	for i, ref := range m.refs {
		if m.linkedElsewhere(ref.ID, p.ID) {
			continue
		}
		if ContainsEitherDirection(orgFull, Normalize(ref.OperatingOrganization)) ||
			ContainsEitherDirection(orgFull, Normalize(ref.Name)) ||
			ContainsEitherDirection(orgCore, m.norm.CoreName(ref.OperatingOrganization)) ||
			ContainsEitherDirection(orgCore, m.norm.CoreName(ref.Name)) {
			hit = append(hit, i)
		}
	}
	if len(hit) != 1 {
		return nil
	}
	return m.decision(p, m.refs[hit[0]], MethodOrgAnchorSingle, confidenceOrgAnchorSingle)
}
