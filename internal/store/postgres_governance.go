package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/alma-cli/internal/db"
	"github.com/sells-group/alma-cli/internal/model"
)

func (s *PostgresStore) InsertIntervention(ctx context.Context, iv *model.Intervention) error {
	cohort, geography, uses, contributors, metadata, err := interventionArgs(iv)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO alma_interventions (id, name, type, description, target_cohort, geography,
			evidence_level, cultural_authority, consent_level, permitted_uses, contributors,
			operating_organization, website, review_status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		iv.ID, iv.Name, nullIfEmpty(iv.Type), nullIfEmpty(iv.Description), cohort, geography,
		nullIfEmpty(iv.EvidenceLevel), nullIfEmpty(iv.CulturalAuthority), string(iv.ConsentLevel), uses, contributors,
		nullIfEmpty(iv.OperatingOrganization), nullIfEmpty(iv.Website), string(iv.ReviewStatus), metadata,
		iv.CreatedAt, iv.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: insert intervention")
}

func (s *PostgresStore) GetIntervention(ctx context.Context, id string) (*model.Intervention, error) {
	iv, err := scanIntervention(s.pool.QueryRow(ctx,
		`SELECT `+interventionColumns+` FROM alma_interventions WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get intervention %s", id)
	}
	return iv, nil
}

// pgInterventionWhere builds the WHERE clause for f. Placeholders start at $1.
func pgInterventionWhere(f model.InterventionFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.ConsentLevel != "" {
		add("consent_level = $%d", string(f.ConsentLevel))
	}
	if f.ReviewStatus != "" {
		add("review_status = $%d", string(f.ReviewStatus))
	}
	if f.Type != "" {
		add("type = $%d", f.Type)
	}
	if len(f.Geography) > 0 {
		add("geography ?| $%d::text[]", f.Geography)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *PostgresStore) ListInterventions(ctx context.Context, f model.InterventionFilter) ([]model.Intervention, int, error) {
	where, args := pgInterventionWhere(f)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM alma_interventions`+where, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "postgres: count interventions")
	}

	query := `SELECT ` + interventionColumns + ` FROM alma_interventions` + where +
		fmt.Sprintf(` ORDER BY portfolio_score DESC NULLS LAST, created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := s.pool.Query(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "postgres: list interventions")
	}
	defer rows.Close()

	out := []model.Intervention{}
	for rows.Next() {
		iv, err := scanIntervention(rows)
		if err != nil {
			return nil, 0, eris.Wrap(err, "postgres: scan intervention")
		}
		out = append(out, *iv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, eris.Wrap(err, "postgres: iterate interventions")
	}
	return out, total, nil
}

func (s *PostgresStore) UpdateIntervention(ctx context.Context, iv *model.Intervention) (bool, error) {
	cohort, geography, uses, contributors, metadata, err := interventionArgs(iv)
	if err != nil {
		return false, err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE alma_interventions SET name = $2, type = $3, description = $4, target_cohort = $5,
			geography = $6, evidence_level = $7, cultural_authority = $8, consent_level = $9,
			permitted_uses = $10, contributors = $11, operating_organization = $12, website = $13,
			metadata = $14, updated_at = $15
		WHERE id = $1 AND review_status IN ('Draft', 'Community Review')`,
		iv.ID, iv.Name, nullIfEmpty(iv.Type), nullIfEmpty(iv.Description), cohort,
		geography, nullIfEmpty(iv.EvidenceLevel), nullIfEmpty(iv.CulturalAuthority), string(iv.ConsentLevel),
		uses, contributors, nullIfEmpty(iv.OperatingOrganization), nullIfEmpty(iv.Website),
		metadata, iv.UpdatedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: update intervention %s", iv.ID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) TransitionStatus(ctx context.Context, id string, from, to model.ReviewStatus, reviewer *string, at time.Time) (bool, error) {
	var (
		query string
		args  []any
	)
	if reviewer != nil {
		query = `UPDATE alma_interventions SET review_status = $3, reviewed_by = $4, reviewed_at = $5, updated_at = $5
			WHERE id = $1 AND review_status = $2`
		args = []any{id, string(from), string(to), *reviewer, at}
	} else {
		query = `UPDATE alma_interventions SET review_status = $3, updated_at = $4
			WHERE id = $1 AND review_status = $2`
		args = []any{id, string(from), string(to), at}
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: transition intervention %s to %s", id, to)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) UpdateSignals(ctx context.Context, id string, sig model.PortfolioSignals) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE alma_interventions SET evidence_strength_signal = $2, community_authority_signal = $3,
			harm_risk_signal = $4, implementation_capability_signal = $5, option_value_signal = $6,
			portfolio_score = $7
		WHERE id = $1`,
		id, sig.EvidenceStrength, sig.CommunityAuthority, sig.HarmRisk,
		sig.ImplementationCapability, sig.OptionValue, sig.PortfolioScore,
	)
	return eris.Wrapf(err, "postgres: update signals %s", id)
}

// ComputeSignals calls the calculate_portfolio_signals database function.
func (s *PostgresStore) ComputeSignals(ctx context.Context, interventionID string) (*model.PortfolioSignals, error) {
	var sig model.PortfolioSignals
	err := s.pool.QueryRow(ctx,
		`SELECT evidence_strength_signal, community_authority_signal, harm_risk_signal,
			implementation_capability_signal, option_value_signal, portfolio_score
		FROM calculate_portfolio_signals($1)`,
		interventionID,
	).Scan(&sig.EvidenceStrength, &sig.CommunityAuthority, &sig.HarmRisk,
		&sig.ImplementationCapability, &sig.OptionValue, &sig.PortfolioScore)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: calculate signals %s", interventionID)
	}
	return &sig, nil
}

func (s *PostgresStore) ReplaceLinks(ctx context.Context, id string, kind model.LinkKind, ids []string) error {
	table, column, err := linkTable(kind)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace links")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE intervention_id = $1`, id); err != nil {
		return eris.Wrapf(err, "postgres: clear %s", table)
	}

	rows := make([][]any, len(ids))
	for i, linked := range ids {
		rows[i] = []any{id, linked}
	}
	if _, err := db.CopyFrom(ctx, tx, table, []string{"intervention_id", column}, rows); err != nil {
		return eris.Wrapf(err, "postgres: insert %s", table)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace links")
}

func (s *PostgresStore) AppendConsent(ctx context.Context, e *model.ConsentLedgerEntry) error {
	uses, err := marshalList(e.PermittedUses)
	if err != nil {
		return err
	}
	contributors, err := marshalList(e.Contributors)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO alma_consent_ledger (id, entity_type, entity_id, consent_level, permitted_uses,
			cultural_authority, contributors, consent_given_by, consent_given_at, consent_expires_at,
			consent_revoked, revenue_share_enabled, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $9)`,
		e.ID, e.EntityType, e.EntityID, string(e.ConsentLevel), uses,
		nullIfEmpty(e.CulturalAuthority), contributors, nullIfEmpty(e.ConsentGivenBy), e.ConsentGivenAt, e.ConsentExpiresAt,
		e.Revoked, e.RevenueShareEnabled, nullIfEmpty(e.Notes),
	)
	return eris.Wrap(err, "postgres: append consent")
}

func (s *PostgresStore) LatestConsent(ctx context.Context, entityType, entityID string) (*model.ConsentLedgerEntry, error) {
	var (
		e                         model.ConsentLedgerEntry
		level                     string
		uses, contributors        []byte
		authority, givenBy, notes *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, entity_type, entity_id, consent_level, permitted_uses, cultural_authority,
			contributors, consent_given_by, consent_given_at, consent_expires_at,
			consent_revoked, revenue_share_enabled, notes
		FROM alma_consent_ledger
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC, id DESC LIMIT 1`,
		entityType, entityID,
	).Scan(&e.ID, &e.EntityType, &e.EntityID, &level, &uses, &authority,
		&contributors, &givenBy, &e.ConsentGivenAt, &e.ConsentExpiresAt,
		&e.Revoked, &e.RevenueShareEnabled, &notes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: latest consent")
	}
	return decodeConsent(e, level, uses, contributors, authority, givenBy, notes)
}

func (s *PostgresStore) AppendUsage(ctx context.Context, e *model.UsageLogEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO alma_usage_log (id, entity_type, entity_id, action, user_id, destination, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.EntityType, e.EntityID, string(e.Action), nullIfEmpty(e.UserID), nullIfEmpty(e.Destination), e.CreatedAt,
	)
	return eris.Wrap(err, "postgres: append usage")
}

func (s *PostgresStore) ListUsage(ctx context.Context, entityType, entityID string, f model.UsageFilter) ([]model.UsageLogEntry, error) {
	query := `SELECT id, entity_type, entity_id, action, COALESCE(user_id, ''), COALESCE(destination, ''), created_at
		FROM alma_usage_log WHERE entity_type = $1 AND entity_id = $2`
	args := []any{entityType, entityID}
	if f.Action != "" {
		args = append(args, string(f.Action))
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if f.Since != nil {
		args = append(args, *f.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if f.Until != nil {
		args = append(args, *f.Until)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list usage")
	}
	defer rows.Close()

	out := []model.UsageLogEntry{}
	for rows.Next() {
		var e model.UsageLogEntry
		var action string
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &action, &e.UserID, &e.Destination, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan usage")
		}
		e.Action = model.UsageAction(action)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate usage")
}

func decodeConsent(e model.ConsentLedgerEntry, level string, uses, contributors []byte, authority, givenBy, notes *string) (*model.ConsentLedgerEntry, error) {
	e.ConsentLevel = model.ConsentLevel(level)
	e.CulturalAuthority = deref(authority)
	e.ConsentGivenBy = deref(givenBy)
	e.Notes = deref(notes)

	var err error
	if e.PermittedUses, err = unmarshalList[model.PermittedUse](uses); err != nil {
		return nil, err
	}
	if e.Contributors, err = unmarshalList[string](contributors); err != nil {
		return nil, err
	}
	return &e, nil
}
