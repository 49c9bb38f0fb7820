// Package store persists programs, organizations, interventions and the
// governance ledgers in Postgres or SQLite.
package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/alma-cli/internal/governance"
	"github.com/sells-group/alma-cli/internal/model"
	"github.com/sells-group/alma-cli/internal/resolve"
)

// Store is the full persistence surface used by the linker and the
// governance service.
type Store interface {
	resolve.Store
	governance.Store

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

var (
	_ Store                       = (*PostgresStore)(nil)
	_ Store                       = (*SQLiteStore)(nil)
	_ governance.SignalCalculator = (*PostgresStore)(nil)
)

// linkTables maps each link kind to its join table and foreign column.
var linkTables = map[model.LinkKind]struct {
	table  string
	column string
}{
	model.LinkOutcomes: {"alma_intervention_outcomes", "outcome_id"},
	model.LinkEvidence: {"alma_intervention_evidence", "evidence_id"},
	model.LinkContexts: {"alma_intervention_contexts", "context_id"},
}

func linkTable(kind model.LinkKind) (string, string, error) {
	t, ok := linkTables[kind]
	if !ok {
		return "", "", eris.Errorf("store: unknown link kind %q", kind)
	}
	return t.table, t.column, nil
}

// marshalList encodes a slice as a JSON array, never null.
func marshalList[T any](v []T) ([]byte, error) {
	if v == nil {
		v = []T{}
	}
	b, err := json.Marshal(v)
	return b, eris.Wrap(err, "store: marshal list")
}

func unmarshalList[T any](b []byte) ([]T, error) {
	out := []T{}
	if len(b) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal list")
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	return b, eris.Wrap(err, "store: marshal metadata")
}

func unmarshalMetadata(b []byte) (map[string]any, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal metadata")
	}
	return m, nil
}

// interventionColumns is the column list shared by every intervention
// SELECT, in scan order.
const interventionColumns = `id, name, type, description, target_cohort, geography,
	evidence_level, cultural_authority, consent_level, permitted_uses, contributors,
	operating_organization, website, linked_community_program_id, review_status,
	reviewed_by, reviewed_at, evidence_strength_signal, community_authority_signal,
	harm_risk_signal, implementation_capability_signal, option_value_signal,
	portfolio_score, metadata, created_at, updated_at`

type scannable interface {
	Scan(dest ...any) error
}

// interventionRow holds raw column values before decoding. Nullable text
// columns scan into *string, JSON columns into []byte.
type interventionRow struct {
	iv            model.Intervention
	typ           *string
	description   *string
	evidence      *string
	authority     *string
	operatingOrg  *string
	website       *string
	consentLevel  string
	reviewStatus  string
	cohort        []byte
	geography     []byte
	uses          []byte
	contributors  []byte
	metadata      []byte
	evidenceSig   *float64
	authoritySig  *float64
	harmSig       *float64
	capabilitySig *float64
	optionSig     *float64
	score         *float64
}

func (r *interventionRow) dest() []any {
	return []any{
		&r.iv.ID, &r.iv.Name, &r.typ, &r.description, &r.cohort, &r.geography,
		&r.evidence, &r.authority, &r.consentLevel, &r.uses, &r.contributors,
		&r.operatingOrg, &r.website, &r.iv.LinkedCommunityProgramID, &r.reviewStatus,
		&r.iv.ReviewedBy, &r.iv.ReviewedAt, &r.evidenceSig, &r.authoritySig,
		&r.harmSig, &r.capabilitySig, &r.optionSig,
		&r.score, &r.metadata, &r.iv.CreatedAt, &r.iv.UpdatedAt,
	}
}

func (r *interventionRow) decode() (*model.Intervention, error) {
	iv := r.iv
	iv.Type = deref(r.typ)
	iv.Description = deref(r.description)
	iv.EvidenceLevel = deref(r.evidence)
	iv.CulturalAuthority = deref(r.authority)
	iv.OperatingOrganization = deref(r.operatingOrg)
	iv.Website = deref(r.website)
	iv.ConsentLevel = model.ConsentLevel(r.consentLevel)
	iv.ReviewStatus = model.ReviewStatus(r.reviewStatus)

	var err error
	if iv.TargetCohort, err = unmarshalList[string](r.cohort); err != nil {
		return nil, err
	}
	if iv.Geography, err = unmarshalList[string](r.geography); err != nil {
		return nil, err
	}
	if iv.PermittedUses, err = unmarshalList[model.PermittedUse](r.uses); err != nil {
		return nil, err
	}
	if iv.Contributors, err = unmarshalList[string](r.contributors); err != nil {
		return nil, err
	}
	if iv.Metadata, err = unmarshalMetadata(r.metadata); err != nil {
		return nil, err
	}
	if r.score != nil {
		iv.Signals = &model.PortfolioSignals{
			EvidenceStrength:         derefFloat(r.evidenceSig),
			CommunityAuthority:       derefFloat(r.authoritySig),
			HarmRisk:                 derefFloat(r.harmSig),
			ImplementationCapability: derefFloat(r.capabilitySig),
			OptionValue:              derefFloat(r.optionSig),
			PortfolioScore:           *r.score,
		}
	}
	return &iv, nil
}

func scanIntervention(row scannable) (*model.Intervention, error) {
	var r interventionRow
	if err := row.Scan(r.dest()...); err != nil {
		return nil, err
	}
	return r.decode()
}

// interventionArgs returns the JSON-encoded list columns for iv.
func interventionArgs(iv *model.Intervention) (cohort, geography, uses, contributors, metadata []byte, err error) {
	if cohort, err = marshalList(iv.TargetCohort); err != nil {
		return
	}
	if geography, err = marshalList(iv.Geography); err != nil {
		return
	}
	if uses, err = marshalList(iv.PermittedUses); err != nil {
		return
	}
	if contributors, err = marshalList(iv.Contributors); err != nil {
		return
	}
	metadata, err = marshalMetadata(iv.Metadata)
	return
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefFloat(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
