package model

// Program is an externally registered service record that the linker
// attaches to an Organization and an Intervention.
type Program struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	Organization       string  `json:"organization"` // free text as registered
	OrganizationID     *string `json:"organization_id,omitempty"`
	AlmaInterventionID *string `json:"alma_intervention_id,omitempty"`
	RelationshipType   *string `json:"relationship_type,omitempty"`
}

// Organization is a canonical organization record. Read-only to the linker.
type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

// InterventionRef is the slice of an Intervention the linker needs.
type InterventionRef struct {
	ID                       string  `json:"id"`
	Name                     string  `json:"name"`
	OperatingOrganization    string  `json:"operating_organization,omitempty"`
	LinkedCommunityProgramID *string `json:"linked_community_program_id,omitempty"`
}
