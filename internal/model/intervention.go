package model

import "time"

// ConsentLevel controls who may see an intervention's knowledge.
type ConsentLevel string

const (
	ConsentPublic    ConsentLevel = "Public Knowledge Commons"
	ConsentCommunity ConsentLevel = "Community Controlled"
	ConsentPrivate   ConsentLevel = "Strictly Private"
)

// ConsentLevels lists every valid consent level.
var ConsentLevels = []ConsentLevel{ConsentPublic, ConsentCommunity, ConsentPrivate}

// Valid reports whether l is a known consent level.
func (l ConsentLevel) Valid() bool {
	for _, v := range ConsentLevels {
		if l == v {
			return true
		}
	}
	return false
}

// PermittedUse is an action the contributors have consented to.
type PermittedUse string

const (
	UseQueryInternal PermittedUse = "Query (internal)"
	UsePublish       PermittedUse = "Publish (JusticeHub)"
	UseExport        PermittedUse = "Export (reports)"
	UseTraining      PermittedUse = "Training (AI)"
	UseCommercial    PermittedUse = "Commercial"
)

// PermittedUses lists every valid permitted use.
var PermittedUses = []PermittedUse{UseQueryInternal, UsePublish, UseExport, UseTraining, UseCommercial}

// Valid reports whether u is a known permitted use.
func (u PermittedUse) Valid() bool {
	for _, v := range PermittedUses {
		if u == v {
			return true
		}
	}
	return false
}

// ReviewStatus is the lifecycle state of an intervention.
type ReviewStatus string

const (
	StatusDraft           ReviewStatus = "Draft"
	StatusCommunityReview ReviewStatus = "Community Review"
	StatusApproved        ReviewStatus = "Approved"
	StatusPublished       ReviewStatus = "Published"
)

// Editable reports whether content updates are allowed in this status.
func (s ReviewStatus) Editable() bool {
	return s == StatusDraft || s == StatusCommunityReview
}

// Intervention is a curated knowledge-base record subject to consent governance.
type Intervention struct {
	ID                       string            `json:"id"`
	Name                     string            `json:"name"`
	Type                     string            `json:"type"`
	Description              string            `json:"description"`
	TargetCohort             []string          `json:"target_cohort"`
	Geography                []string          `json:"geography"`
	EvidenceLevel            string            `json:"evidence_level,omitempty"`
	CulturalAuthority        string            `json:"cultural_authority,omitempty"`
	ConsentLevel             ConsentLevel      `json:"consent_level"`
	PermittedUses            []PermittedUse    `json:"permitted_uses"`
	Contributors             []string          `json:"contributors"`
	OperatingOrganization    string            `json:"operating_organization,omitempty"`
	Website                  string            `json:"website,omitempty"`
	LinkedCommunityProgramID *string           `json:"linked_community_program_id,omitempty"`
	ReviewStatus             ReviewStatus      `json:"review_status"`
	ReviewedBy               *string           `json:"reviewed_by,omitempty"`
	ReviewedAt               *time.Time        `json:"reviewed_at,omitempty"`
	Signals                  *PortfolioSignals `json:"signals,omitempty"`
	Metadata                 map[string]any    `json:"metadata,omitempty"`
	CreatedAt                time.Time         `json:"created_at"`
	UpdatedAt                time.Time         `json:"updated_at"`
}

// HasPermittedUse reports whether u is in the intervention's permitted uses.
func (iv *Intervention) HasPermittedUse(u PermittedUse) bool {
	for _, p := range iv.PermittedUses {
		if p == u {
			return true
		}
	}
	return false
}

// PortfolioSignals are the five derived signals plus the composite score.
type PortfolioSignals struct {
	EvidenceStrength         float64 `json:"evidence_strength"`
	CommunityAuthority       float64 `json:"community_authority"`
	HarmRisk                 float64 `json:"harm_risk"`
	ImplementationCapability float64 `json:"implementation_capability"`
	OptionValue              float64 `json:"option_value"`
	PortfolioScore           float64 `json:"portfolio_score"`
}

// InterventionFilter narrows List results. Zero values mean "any".
type InterventionFilter struct {
	ConsentLevel ConsentLevel `json:"consent_level,omitempty"`
	ReviewStatus ReviewStatus `json:"review_status,omitempty"`
	Type         string       `json:"type,omitempty"`
	Geography    []string     `json:"geography,omitempty"` // matches on any overlap
	Limit        int          `json:"limit,omitempty"`
	Offset       int          `json:"offset,omitempty"`
}

// LinkKind names one of the related-entity link tables.
type LinkKind string

const (
	LinkOutcomes LinkKind = "outcomes"
	LinkEvidence LinkKind = "evidence"
	LinkContexts LinkKind = "contexts"
)
