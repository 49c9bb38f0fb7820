package model

import "time"

// EntityTypeIntervention is the entity type recorded for intervention rows
// in the consent ledger and usage log.
const EntityTypeIntervention = "intervention"

// ConsentLedgerEntry is one append-only consent record. The newest entry
// for an entity governs.
type ConsentLedgerEntry struct {
	ID                  string         `json:"id"`
	EntityType          string         `json:"entity_type"`
	EntityID            string         `json:"entity_id"`
	ConsentLevel        ConsentLevel   `json:"consent_level"`
	PermittedUses       []PermittedUse `json:"permitted_uses"`
	CulturalAuthority   string         `json:"cultural_authority,omitempty"`
	Contributors        []string       `json:"contributors"`
	ConsentGivenBy      string         `json:"consent_given_by,omitempty"`
	ConsentGivenAt      time.Time      `json:"consent_given_at"`
	ConsentExpiresAt    *time.Time     `json:"consent_expires_at,omitempty"`
	Revoked             bool           `json:"consent_revoked"`
	RevenueShareEnabled bool           `json:"revenue_share_enabled"`
	Notes               string         `json:"notes,omitempty"`
}

// UsageAction is the kind of access recorded in the usage log.
type UsageAction string

const (
	ActionView    UsageAction = "view"
	ActionCreate  UsageAction = "create"
	ActionUpdate  UsageAction = "update"
	ActionSubmit  UsageAction = "submit"
	ActionApprove UsageAction = "approve"
	ActionPublish UsageAction = "publish"
	ActionRevoke  UsageAction = "revoke"
	ActionConsent UsageAction = "consent"
)

// UsageLogEntry is one append-only usage record.
type UsageLogEntry struct {
	ID          string      `json:"id"`
	EntityType  string      `json:"entity_type"`
	EntityID    string      `json:"entity_id"`
	Action      UsageAction `json:"action"`
	UserID      string      `json:"user_id,omitempty"`
	Destination string      `json:"destination,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// UsageFilter narrows usage history queries.
type UsageFilter struct {
	Action UsageAction `json:"action,omitempty"`
	Since  *time.Time  `json:"since,omitempty"`
	Until  *time.Time  `json:"until,omitempty"`
}

// GovernanceCheck is the outcome of one consent rule.
type GovernanceCheck struct {
	Rule           string `json:"rule"`
	Passed         bool   `json:"passed"`
	Reason         string `json:"reason,omitempty"`
	RequiredAction string `json:"required_action,omitempty"`
}
