package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/alma-cli/internal/config"
	"github.com/sells-group/alma-cli/internal/model"
)

func strPtr(s string) *string { return &s }

func newTestInterventionMatcher(overrides *OverrideRegistry, refs ...model.InterventionRef) *InterventionMatcher {
	return NewInterventionMatcher(refs, NewNormalizer(config.DefaultOrgStopwords), DefaultThresholds(), overrides)
}

func TestInterventionMatcher_YouthBridgeExample(t *testing.T) {
	m := newTestInterventionMatcher(nil,
		model.InterventionRef{ID: "iv1", Name: "Youth Bridge Program"},
	)

	d := m.Match(model.Program{ID: "p1", Name: "Youth Bridge Program", Organization: "Youth Bridge Inc"})
	require.NotNil(t, d)
	assert.Equal(t, "iv1", d.AlmaInterventionID)
	assert.Equal(t, MethodNameExact, d.MatchMethod)
	assert.Equal(t, 0.97, d.Confidence)
	assert.Equal(t, "alma_name_exact", d.MatchMethod.RelationshipType())
	assert.Nil(t, d.Override())
}

func TestInterventionMatcher_ExactNameBeatsEarlierOverlap(t *testing.T) {
	m := newTestInterventionMatcher(nil,
		model.InterventionRef{ID: "iv-overlap", Name: "Program Youth Bridge"},
		model.InterventionRef{ID: "iv-exact", Name: "Youth Bridge Program"},
	)

	d := m.Match(model.Program{ID: "p1", Name: "Youth Bridge Program"})
	require.NotNil(t, d)
	assert.Equal(t, "iv-exact", d.AlmaInterventionID)
	assert.Equal(t, MethodNameExact, d.MatchMethod)
}

func TestInterventionMatcher_NameCollisionNarrowedByOrg(t *testing.T) {
	m := newTestInterventionMatcher(nil,
		model.InterventionRef{ID: "iv1", Name: "Healing Circles", OperatingOrganization: "Desert Elders Group"},
		model.InterventionRef{ID: "iv2", Name: "Healing Circles", OperatingOrganization: "Northern Healing Collective"},
	)

	d := m.Match(model.Program{ID: "p1", Name: "Healing Circles", Organization: "Northern Healing Collective"})
	require.NotNil(t, d)
	assert.Equal(t, "iv2", d.AlmaInterventionID)
	assert.Equal(t, MethodNameAndOrgExact, d.MatchMethod)
	assert.Equal(t, 0.99, d.Confidence)
}

func TestInterventionMatcher_TokenOverlap(t *testing.T) {
	m := newTestInterventionMatcher(nil,
		model.InterventionRef{ID: "iv1", Name: "Aboriginal Youth Justice Diversion Mentoring On Country Camp Kimberley"},
		model.InterventionRef{ID: "iv2", Name: "Family Wellbeing"},
	)

	d := m.Match(model.Program{ID: "p1", Name: "Aboriginal Youth Justice Diversion Mentoring On Country Camp Program Kimberley"})
	require.NotNil(t, d)
	assert.Equal(t, "iv1", d.AlmaInterventionID)
	assert.Equal(t, MethodNameTokenOverlap, d.MatchMethod)
	assert.Equal(t, 0.9, d.Confidence)
}

func TestInterventionMatcher_TokenOverlapRounded(t *testing.T) {
	m := newTestInterventionMatcher(nil,
		model.InterventionRef{ID: "iv1", Name: "Kimberley Youth Justice Diversion Mentoring Country"},
	)

	d := m.Match(model.Program{ID: "p1", Name: "Kimberley Youth Justice Diversion Mentoring On Country"})
	require.NotNil(t, d)
	assert.Equal(t, MethodNameTokenOverlap, d.MatchMethod)
	assert.Equal(t, 0.86, d.Confidence)
}

func TestInterventionMatcher_OrgAnchorSingle(t *testing.T) {
	m := newTestInterventionMatcher(nil,
		model.InterventionRef{ID: "iv1", Name: "Elders Yarning Circle", OperatingOrganization: "Wiradjuri Elders Council Inc"},
		model.InterventionRef{ID: "iv2", Name: "Family Wellbeing", OperatingOrganization: "Desert Health Service"},
	)

	d := m.Match(model.Program{ID: "p1", Name: "After School Hub", Organization: "Wiradjuri Elders Council"})
	require.NotNil(t, d)
	assert.Equal(t, "iv1", d.AlmaInterventionID)
	assert.Equal(t, MethodOrgAnchorSingle, d.MatchMethod)
	assert.Equal(t, 0.9, d.Confidence)
}

func TestInterventionMatcher_OrgAnchorAmbiguous(t *testing.T) {
	m := newTestInterventionMatcher(nil,
		model.InterventionRef{ID: "iv1", Name: "Elders Yarning Circle", OperatingOrganization: "Wiradjuri Elders Council"},
		model.InterventionRef{ID: "iv2", Name: "Bush Camp", OperatingOrganization: "Wiradjuri Elders Council"},
	)

	d := m.Match(model.Program{ID: "p1", Name: "After School Hub", Organization: "Wiradjuri Elders Council"})
	assert.Nil(t, d)
}

func TestInterventionMatcher_NoMatch(t *testing.T) {
	m := newTestInterventionMatcher(nil,
		model.InterventionRef{ID: "iv1", Name: "Family Wellbeing"},
	)

	assert.Nil(t, m.Match(model.Program{ID: "p1", Name: "After School Hub", Organization: "Some Org"}))
}

func TestInterventionMatcher_OverrideWins(t *testing.T) {
	reg := NewOverrideRegistry([]ManualOverride{
		{ProgramID: "p1", AlmaInterventionID: "iv-pinned", Confidence: 0.99, Reason: "verified"},
	})
	m := newTestInterventionMatcher(reg,
		model.InterventionRef{ID: "iv-exact", Name: "Youth Bridge Program"},
		model.InterventionRef{ID: "iv-pinned", Name: "Oochiumpa Youth Services"},
	)

	d := m.Match(model.Program{ID: "p1", Name: "Youth Bridge Program"})
	require.NotNil(t, d)
	assert.Equal(t, "iv-pinned", d.AlmaInterventionID)
	assert.Equal(t, MethodOrgAnchorSingle, d.MatchMethod)
	assert.Equal(t, 0.99, d.Confidence)
	require.NotNil(t, d.Override())
	assert.Equal(t, "verified", d.Override().Reason)
}

func TestInterventionMatcher_OverrideAlreadyLinkedToSameProgram(t *testing.T) {
	reg := NewOverrideRegistry([]ManualOverride{
		{ProgramID: "p1", AlmaInterventionID: "iv-pinned", Confidence: 0.99, Reason: "verified"},
	})
	m := newTestInterventionMatcher(reg,
		model.InterventionRef{ID: "iv-pinned", Name: "Oochiumpa Youth Services", LinkedCommunityProgramID: strPtr("p1")},
	)

	d := m.Match(model.Program{ID: "p1", Name: "Youth Bridge Program"})
	require.NotNil(t, d)
	assert.Equal(t, "iv-pinned", d.AlmaInterventionID)
}

func TestInterventionMatcher_OverrideSkippedWhenLinkedElsewhere(t *testing.T) {
	reg := NewOverrideRegistry([]ManualOverride{
		{ProgramID: "p1", AlmaInterventionID: "iv-pinned", Confidence: 0.99, Reason: "verified"},
	})
	m := newTestInterventionMatcher(reg,
		model.InterventionRef{ID: "iv-exact", Name: "Youth Bridge Program"},
		model.InterventionRef{ID: "iv-pinned", Name: "Oochiumpa Youth Services", LinkedCommunityProgramID: strPtr("p-other")},
	)

	d := m.Match(model.Program{ID: "p1", Name: "Youth Bridge Program"})
	require.NotNil(t, d)
	assert.Equal(t, "iv-exact", d.AlmaInterventionID)
	assert.Equal(t, MethodNameExact, d.MatchMethod)
	assert.Nil(t, d.Override())
}

func TestInterventionMatcher_OverrideUnknownTarget(t *testing.T) {
	reg := NewOverrideRegistry([]ManualOverride{
		{ProgramID: "p1", AlmaInterventionID: "missing", Confidence: 0.99, Reason: "verified"},
	})
	m := newTestInterventionMatcher(reg,
		model.InterventionRef{ID: "iv-exact", Name: "Youth Bridge Program"},
	)

	d := m.Match(model.Program{ID: "p1", Name: "Youth Bridge Program"})
	require.NotNil(t, d)
	assert.Equal(t, "iv-exact", d.AlmaInterventionID)
}

func TestInterventionMatcher_ExactNameLinkedElsewhereFallsThrough(t *testing.T) {
	m := newTestInterventionMatcher(nil,
		model.InterventionRef{ID: "iv1", Name: "Youth Bridge Program", LinkedCommunityProgramID: strPtr("p-other")},
	)

	assert.Nil(t, m.Match(model.Program{ID: "p1", Name: "Youth Bridge Program"}))
}

func TestInterventionMatcher_ClaimBlocksLaterPrograms(t *testing.T) {
	m := newTestInterventionMatcher(nil,
		model.InterventionRef{ID: "iv1", Name: "Youth Bridge Program"},
	)

	first := m.Match(model.Program{ID: "p1", Name: "Youth Bridge Program"})
	require.NotNil(t, first)
	m.Claim(first.AlmaInterventionID, "p1")

	assert.Nil(t, m.Match(model.Program{ID: "p2", Name: "Youth Bridge Program"}))

	pid, ok := m.LinkedTo("iv1")
	assert.True(t, ok)
	assert.Equal(t, "p1", pid)
}

func TestInterventionMatcher_ClaimNeverReplaces(t *testing.T) {
	m := newTestInterventionMatcher(nil,
		model.InterventionRef{ID: "iv1", Name: "Youth Bridge Program", LinkedCommunityProgramID: strPtr("p1")},
	)

	m.Claim("iv1", "p2")
	pid, _ := m.LinkedTo("iv1")
	assert.Equal(t, "p1", pid)
}
