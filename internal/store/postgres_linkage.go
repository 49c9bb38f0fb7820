package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/alma-cli/internal/model"
)

func (s *PostgresStore) ListPrograms(ctx context.Context) ([]model.Program, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, COALESCE(organization, ''), organization_id, alma_intervention_id, relationship_type
		FROM registered_services ORDER BY id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list programs")
	}
	defer rows.Close()

	var out []model.Program
	for rows.Next() {
		var p model.Program
		if err := rows.Scan(&p.ID, &p.Name, &p.Organization, &p.OrganizationID, &p.AlmaInterventionID, &p.RelationshipType); err != nil {
			return nil, eris.Wrap(err, "postgres: scan program")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate programs")
}

func (s *PostgresStore) ListOrganizations(ctx context.Context) ([]model.Organization, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, COALESCE(slug, '') FROM organizations ORDER BY id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list organizations")
	}
	defer rows.Close()

	var out []model.Organization
	for rows.Next() {
		var o model.Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.Slug); err != nil {
			return nil, eris.Wrap(err, "postgres: scan organization")
		}
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate organizations")
}

func (s *PostgresStore) ListInterventionRefs(ctx context.Context) ([]model.InterventionRef, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, COALESCE(operating_organization, ''), linked_community_program_id
		FROM alma_interventions ORDER BY id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list interventions")
	}
	defer rows.Close()

	var out []model.InterventionRef
	for rows.Next() {
		var r model.InterventionRef
		if err := rows.Scan(&r.ID, &r.Name, &r.OperatingOrganization, &r.LinkedCommunityProgramID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan intervention")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate interventions")
}

func (s *PostgresStore) SetProgramOrganization(ctx context.Context, programID, organizationID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, pgSetProgramOrganization, programID, organizationID)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: set organization for program %s", programID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) SetProgramIntervention(ctx context.Context, programID, interventionID, relationshipType string) (bool, error) {
	tag, err := s.pool.Exec(ctx, pgSetProgramIntervention, programID, interventionID, relationshipType)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: set intervention for program %s", programID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ClaimIntervention(ctx context.Context, interventionID, programID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, pgClaimIntervention, interventionID, programID)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: claim intervention %s", interventionID)
	}
	return tag.RowsAffected() > 0, nil
}
