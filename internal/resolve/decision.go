package resolve

import "github.com/sells-group/alma-cli/internal/config"

// MatchMethod tags how a link was made. Intervention methods are persisted
// on the program as relationship_type "alma_<method>".
type MatchMethod string

const (
	MethodNameExact        MatchMethod = "name_exact"
	MethodNameAndOrgExact  MatchMethod = "name_and_org_exact"
	MethodNameTokenOverlap MatchMethod = "name_token_overlap"
	MethodOrgAnchorSingle  MatchMethod = "organization_anchor_single"

	MethodOrgAliasExact    MatchMethod = "organization_alias_exact"
	MethodOrgAliasContains MatchMethod = "organization_alias_contains"
	MethodOrgCoreContains  MatchMethod = "organization_core_contains"
	MethodOrgCoreOverlap   MatchMethod = "organization_core_overlap"
)

// RelationshipType returns the program relationship_type for an intervention link.
func (m MatchMethod) RelationshipType() string {
	return "alma_" + string(m)
}

// Fixed confidences for the deterministic strategies.
const (
	confidenceNameExact       = 0.97
	confidenceNameAndOrgExact = 0.99
	confidenceOrgAnchorSingle = 0.90

	scoreOrgAliasExact    = 1.0
	scoreOrgAliasContains = 0.97
	scoreOrgCoreContains  = 0.94
)

// LinkDecision is the outcome of intervention resolution for one program.
type LinkDecision struct {
	ProgramID          string      `json:"program_id"`
	ProgramName        string      `json:"program_name"`
	AlmaInterventionID string      `json:"alma_intervention_id"`
	AlmaName           string      `json:"alma_name"`
	MatchMethod        MatchMethod `json:"match_method"`
	Confidence         float64     `json:"confidence"`

	override *ManualOverride
}

// Thresholds are the scoring cut-offs used by the matchers.
type Thresholds struct {
	OrgAccept         float64 // minimum top organization score
	OrgMargin         float64 // minimum gap between top and runner-up
	OrgCoreOverlap    float64 // minimum core-name token overlap for an org candidate
	NameOverlap       float64 // minimum program/intervention name overlap
	LinkMinConfidence float64 // global floor for intervention links
}

// DefaultThresholds returns the production cut-offs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		OrgAccept:         0.94,
		OrgMargin:         0.05,
		OrgCoreOverlap:    0.92,
		NameOverlap:       0.85,
		LinkMinConfidence: 0.90,
	}
}

// ThresholdsFromConfig converts the linkage config section.
func ThresholdsFromConfig(c config.ThresholdsConfig) Thresholds {
	return Thresholds{
		OrgAccept:         c.OrgAccept,
		OrgMargin:         c.OrgMargin,
		OrgCoreOverlap:    c.OrgCoreOverlap,
		NameOverlap:       c.NameOverlap,
		LinkMinConfidence: c.LinkMinConfidence,
	}
}

// Override returns the manual override that produced this decision, if any.
func (d *LinkDecision) Override() *ManualOverride {
	return d.override
}
