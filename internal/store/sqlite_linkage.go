package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/alma-cli/internal/model"
)

func (s *SQLiteStore) ListPrograms(ctx context.Context) ([]model.Program, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, COALESCE(organization, ''), organization_id, alma_intervention_id, relationship_type
		FROM registered_services ORDER BY id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list programs")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Program
	for rows.Next() {
		var p model.Program
		if err := rows.Scan(&p.ID, &p.Name, &p.Organization, &p.OrganizationID, &p.AlmaInterventionID, &p.RelationshipType); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan program")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate programs")
}

func (s *SQLiteStore) ListOrganizations(ctx context.Context) ([]model.Organization, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, COALESCE(slug, '') FROM organizations ORDER BY id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list organizations")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Organization
	for rows.Next() {
		var o model.Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.Slug); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan organization")
		}
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate organizations")
}

func (s *SQLiteStore) ListInterventionRefs(ctx context.Context) ([]model.InterventionRef, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, COALESCE(operating_organization, ''), linked_community_program_id
		FROM alma_interventions ORDER BY id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list interventions")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.InterventionRef
	for rows.Next() {
		var r model.InterventionRef
		if err := rows.Scan(&r.ID, &r.Name, &r.OperatingOrganization, &r.LinkedCommunityProgramID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan intervention")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate interventions")
}

func (s *SQLiteStore) SetProgramOrganization(ctx context.Context, programID, organizationID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE registered_services SET organization_id = ? WHERE id = ? AND organization_id IS NULL`,
		organizationID, programID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: set organization for program %s", programID)
	}
	return changed(res)
}

func (s *SQLiteStore) SetProgramIntervention(ctx context.Context, programID, interventionID, relationshipType string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE registered_services SET alma_intervention_id = ?, relationship_type = ?
		WHERE id = ? AND alma_intervention_id IS NULL`,
		interventionID, relationshipType, programID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: set intervention for program %s", programID)
	}
	return changed(res)
}

func (s *SQLiteStore) ClaimIntervention(ctx context.Context, interventionID, programID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alma_interventions SET linked_community_program_id = ?
		WHERE id = ? AND (linked_community_program_id IS NULL OR linked_community_program_id = ?)`,
		programID, interventionID, programID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: claim intervention %s", interventionID)
	}
	return changed(res)
}
