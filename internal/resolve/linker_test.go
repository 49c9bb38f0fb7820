package resolve

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/alma-cli/internal/config"
	"github.com/sells-group/alma-cli/internal/model"
)

// memStore is an in-memory Store with the same conditional-write semantics
// as the SQL stores.
type memStore struct {
	programs []model.Program
	orgs     []model.Organization
	refs     []model.InterventionRef

	loadErr    error
	linkErr    error
	stolenRefs map[string]string // claims made by another writer after load
	writes     int
}

func (s *memStore) ListPrograms(_ context.Context) ([]model.Program, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	out := make([]model.Program, len(s.programs))
	copy(out, s.programs)
	return out, nil
}

func (s *memStore) ListOrganizations(_ context.Context) ([]model.Organization, error) {
	return s.orgs, nil
}

func (s *memStore) ListInterventionRefs(_ context.Context) ([]model.InterventionRef, error) {
	out := make([]model.InterventionRef, len(s.refs))
	copy(out, s.refs)
	return out, nil
}

func (s *memStore) SetProgramOrganization(_ context.Context, programID, organizationID string) (bool, error) {
	s.writes++
	for i := range s.programs {
		if s.programs[i].ID == programID && s.programs[i].OrganizationID == nil {
			s.programs[i].OrganizationID = strPtr(organizationID)
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) SetProgramIntervention(_ context.Context, programID, interventionID, relationshipType string) (bool, error) {
	s.writes++
	if s.linkErr != nil {
		return false, s.linkErr
	}
	for i := range s.programs {
		if s.programs[i].ID == programID && s.programs[i].AlmaInterventionID == nil {
			s.programs[i].AlmaInterventionID = strPtr(interventionID)
			s.programs[i].RelationshipType = strPtr(relationshipType)
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) ClaimIntervention(_ context.Context, interventionID, programID string) (bool, error) {
	s.writes++
	if pid, ok := s.stolenRefs[interventionID]; ok {
		s.setLinked(interventionID, pid)
	}
	for i := range s.refs {
		if s.refs[i].ID != interventionID {
			continue
		}
		cur := s.refs[i].LinkedCommunityProgramID
		if cur == nil || *cur == programID {
			s.refs[i].LinkedCommunityProgramID = strPtr(programID)
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) setLinked(interventionID, programID string) {
	for i := range s.refs {
		if s.refs[i].ID == interventionID && s.refs[i].LinkedCommunityProgramID == nil {
			s.refs[i].LinkedCommunityProgramID = strPtr(programID)
		}
	}
}

func (s *memStore) program(id string) model.Program {
	for _, p := range s.programs {
		if p.ID == id {
			return p
		}
	}
	return model.Program{}
}

func testLinkerOptions() LinkerOptions {
	return LinkerOptions{
		Stopwords:        config.DefaultOrgStopwords,
		Thresholds:       DefaultThresholds(),
		OrgReviewSample:  200,
		LinkReviewSample: 300,
	}
}

func youthBridgeStore() *memStore {
	return &memStore{
		programs: []model.Program{
			{ID: "p1", Name: "Youth Bridge Program", Organization: "Youth Bridge Inc"},
		},
		orgs: []model.Organization{
			{ID: "o1", Name: "Youth Bridge Incorporated"},
		},
		refs: []model.InterventionRef{
			{ID: "iv1", Name: "Youth Bridge Program"},
		},
	}
}

func TestLinker_YouthBridgeExample(t *testing.T) {
	store := youthBridgeStore()

	report, err := NewLinker(store, testLinkerOptions()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Summary.ProgramsTotal)
	assert.Equal(t, 1, report.Summary.OrganizationsMatched)
	assert.Equal(t, 1, report.Summary.LinksCreated)
	assert.Equal(t, 0, report.Summary.LinksNeedingReview)

	p := store.program("p1")
	require.NotNil(t, p.OrganizationID)
	assert.Equal(t, "o1", *p.OrganizationID)
	require.NotNil(t, p.AlmaInterventionID)
	assert.Equal(t, "iv1", *p.AlmaInterventionID)
	require.NotNil(t, p.RelationshipType)
	assert.Equal(t, "alma_name_exact", *p.RelationshipType)
	require.NotNil(t, store.refs[0].LinkedCommunityProgramID)
	assert.Equal(t, "p1", *store.refs[0].LinkedCommunityProgramID)

	require.Len(t, report.LinkUpdates, 1)
	assert.Equal(t, 0.97, report.LinkUpdates[0].Confidence)
}

func TestLinker_Idempotent(t *testing.T) {
	store := youthBridgeStore()
	store.programs = append(store.programs, model.Program{ID: "p2", Name: "After School Hub", Organization: "Nobody Known"})

	linker := NewLinker(store, testLinkerOptions())
	first, err := linker.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Summary.LinksCreated)

	writesAfterFirst := store.writes
	second, err := linker.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, second.Summary.LinksCreated)
	assert.Equal(t, 0, second.Summary.OrganizationsMatched)
	assert.Equal(t, writesAfterFirst, store.writes)
	assert.Equal(t, first.LinkNeedsReview, second.LinkNeedsReview)
	assert.Equal(t, first.OrganizationNeedsReview, second.OrganizationNeedsReview)
}

func TestLinker_NoDoubleLinking(t *testing.T) {
	store := &memStore{
		programs: []model.Program{
			{ID: "p1", Name: "Youth Bridge Program"},
			{ID: "p2", Name: "Youth Bridge Program"},
		},
		refs: []model.InterventionRef{{ID: "iv1", Name: "Youth Bridge Program"}},
	}

	report, err := NewLinker(store, testLinkerOptions()).Run(context.Background())
	require.NoError(t, err)

	holders := 0
	for _, p := range store.programs {
		if p.AlmaInterventionID != nil && *p.AlmaInterventionID == "iv1" {
			holders++
		}
	}
	assert.Equal(t, 1, holders)
	assert.Equal(t, 1, report.Summary.LinksCreated)
	require.Len(t, report.LinkNeedsReview, 1)
	assert.Equal(t, "p2", report.LinkNeedsReview[0].ProgramID)
	assert.Equal(t, reasonNoMatch, report.LinkNeedsReview[0].Reason)
}

func TestLinker_ForwardLinkWithoutBackreferenceIsHeld(t *testing.T) {
	store := &memStore{
		programs: []model.Program{
			{ID: "p1", Name: "Youth Bridge Program", AlmaInterventionID: strPtr("iv1")},
			{ID: "p2", Name: "Youth Bridge Program"},
		},
		refs: []model.InterventionRef{{ID: "iv1", Name: "Youth Bridge Program"}},
	}

	report, err := NewLinker(store, testLinkerOptions()).Run(context.Background())
	require.NoError(t, err)

	holders := 0
	for _, p := range store.programs {
		if p.AlmaInterventionID != nil && *p.AlmaInterventionID == "iv1" {
			holders++
		}
	}
	assert.Equal(t, 1, holders)
	assert.Equal(t, 0, report.Summary.LinksCreated)
	assert.Nil(t, store.refs[0].LinkedCommunityProgramID)
	require.Len(t, report.LinkNeedsReview, 1)
	assert.Equal(t, "p2", report.LinkNeedsReview[0].ProgramID)
}

func TestLinker_LowConfidenceGoesToReview(t *testing.T) {
	store := &memStore{
		programs: []model.Program{{ID: "p1", Name: "Kimberley Youth Justice Diversion Mentoring On Country"}},
		refs:     []model.InterventionRef{{ID: "iv1", Name: "Kimberley Youth Justice Diversion Mentoring Country"}},
	}

	report, err := NewLinker(store, testLinkerOptions()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.Summary.LinksCreated)
	require.Len(t, report.LinkNeedsReview, 1)
	assert.Equal(t, "Low confidence (0.86)", report.LinkNeedsReview[0].Reason)
	assert.Nil(t, store.program("p1").AlmaInterventionID)
}

func TestLinker_ConfidenceFloorHoldsWhenConfiguredLower(t *testing.T) {
	store := &memStore{
		programs: []model.Program{{ID: "p1", Name: "Kimberley Youth Justice Diversion Mentoring On Country"}},
		refs:     []model.InterventionRef{{ID: "iv1", Name: "Kimberley Youth Justice Diversion Mentoring Country"}},
	}
	opts := testLinkerOptions()
	opts.Thresholds.LinkMinConfidence = 0.5

	report, err := NewLinker(store, opts).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.Summary.LinksCreated)
	require.Len(t, report.LinkNeedsReview, 1)
	assert.Equal(t, "Low confidence (0.86)", report.LinkNeedsReview[0].Reason)
}

func TestLinker_ManualOverrideReported(t *testing.T) {
	store := &memStore{
		programs: []model.Program{{ID: "p1", Name: "Operation Luna"}},
		refs:     []model.InterventionRef{{ID: "iv-pinned", Name: "Oochiumpa Youth Services"}},
	}
	opts := testLinkerOptions()
	opts.Overrides = NewOverrideRegistry([]ManualOverride{
		{ProgramID: "p1", AlmaInterventionID: "iv-pinned", Confidence: 0.99, Reason: "verified"},
	})

	report, err := NewLinker(store, opts).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Summary.ManualOverridesApplied)
	require.Len(t, report.ManualOverridesApplied, 1)
	assert.Equal(t, "verified", report.ManualOverridesApplied[0].Reason)
	assert.Equal(t, "alma_organization_anchor_single", *store.program("p1").RelationshipType)
}

// A lost back-reference race leaves the forward link in place. This is
// surfaced in the report rather than treated as an error.
func TestLinker_BackreferenceLostRaceKeepsForwardLink(t *testing.T) {
	store := youthBridgeStore()
	store.stolenRefs = map[string]string{"iv1": "p-concurrent"}

	report, err := NewLinker(store, testLinkerOptions()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Summary.LinksCreated)
	assert.Equal(t, 1, report.Summary.BackreferenceConflicts)
	require.Len(t, report.BackreferenceConflicts, 1)
	assert.Equal(t, "iv1", report.BackreferenceConflicts[0].AlmaInterventionID)

	assert.Equal(t, "iv1", *store.program("p1").AlmaInterventionID)
	assert.Equal(t, "p-concurrent", *store.refs[0].LinkedCommunityProgramID)
}

func TestLinker_WriteErrorRecordedAndRunContinues(t *testing.T) {
	store := youthBridgeStore()
	store.linkErr = errors.New("connection reset")

	report, err := NewLinker(store, testLinkerOptions()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.Summary.LinksCreated)
	assert.Equal(t, 1, report.Summary.OrganizationsMatched)
	require.Len(t, report.WriteFailures, 1)
	assert.Equal(t, "intervention", report.WriteFailures[0].Stage)
	assert.Contains(t, report.WriteFailures[0].Error, "connection reset")
}

func TestLinker_DryRunMakesNoWrites(t *testing.T) {
	store := youthBridgeStore()
	opts := testLinkerOptions()
	opts.DryRun = true

	report, err := NewLinker(store, opts).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.Summary.LinksCreated)
	assert.Equal(t, 1, report.Summary.OrganizationsMatched)
	assert.Equal(t, 0, store.writes)
	assert.Nil(t, store.program("p1").AlmaInterventionID)
}

func TestLinker_LoadError(t *testing.T) {
	store := youthBridgeStore()
	store.loadErr = errors.New("boom")

	_, err := NewLinker(store, testLinkerOptions()).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load programs")
}

func TestLinker_ReviewSampleTruncated(t *testing.T) {
	store := &memStore{
		programs: []model.Program{
			{ID: "p1", Name: "Alpha Hub", Organization: "Unknown One"},
			{ID: "p2", Name: "Beta Hub", Organization: "Unknown Two"},
			{ID: "p3", Name: "Gamma Hub", Organization: "Unknown Three"},
		},
	}
	opts := testLinkerOptions()
	opts.OrgReviewSample = 1
	opts.LinkReviewSample = 2

	report, err := NewLinker(store, opts).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Summary.OrganizationsNeedingReview)
	assert.Equal(t, 3, report.Summary.LinksNeedingReview)
	assert.Len(t, report.OrganizationNeedsReview, 1)
	assert.Len(t, report.LinkNeedsReview, 2)
}

func TestLinker_ThrottledWrites(t *testing.T) {
	store := youthBridgeStore()
	opts := testLinkerOptions()
	opts.WritesPerSecond = 1000

	report, err := NewLinker(store, opts).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Summary.LinksCreated)
}
