package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/alma-cli/internal/model"
)

func (s *SQLiteStore) InsertIntervention(ctx context.Context, iv *model.Intervention) error {
	cohort, geography, uses, contributors, metadata, err := interventionArgs(iv)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO alma_interventions (id, name, type, description, target_cohort, geography,
			evidence_level, cultural_authority, consent_level, permitted_uses, contributors,
			operating_organization, website, review_status, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		iv.ID, iv.Name, nullIfEmpty(iv.Type), nullIfEmpty(iv.Description), string(cohort), string(geography),
		nullIfEmpty(iv.EvidenceLevel), nullIfEmpty(iv.CulturalAuthority), string(iv.ConsentLevel), string(uses), string(contributors),
		nullIfEmpty(iv.OperatingOrganization), nullIfEmpty(iv.Website), string(iv.ReviewStatus), jsonText(metadata),
		iv.CreatedAt, iv.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: insert intervention")
}

func (s *SQLiteStore) GetIntervention(ctx context.Context, id string) (*model.Intervention, error) {
	iv, err := scanIntervention(s.db.QueryRowContext(ctx,
		`SELECT `+interventionColumns+` FROM alma_interventions WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get intervention %s", id)
	}
	return iv, nil
}

func sqliteInterventionWhere(f model.InterventionFilter) (string, []any) {
	var conds []string
	var args []any
	if f.ConsentLevel != "" {
		conds = append(conds, "consent_level = ?")
		args = append(args, string(f.ConsentLevel))
	}
	if f.ReviewStatus != "" {
		conds = append(conds, "review_status = ?")
		args = append(args, string(f.ReviewStatus))
	}
	if f.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, f.Type)
	}
	if len(f.Geography) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(f.Geography)), ", ")
		conds = append(conds, "EXISTS (SELECT 1 FROM json_each(alma_interventions.geography) WHERE value IN ("+marks+"))")
		for _, g := range f.Geography {
			args = append(args, g)
		}
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *SQLiteStore) ListInterventions(ctx context.Context, f model.InterventionFilter) ([]model.Intervention, int, error) {
	where, args := sqliteInterventionWhere(f)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alma_interventions`+where, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: count interventions")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+interventionColumns+` FROM alma_interventions`+where+
			` ORDER BY portfolio_score IS NULL, portfolio_score DESC, created_at DESC, id LIMIT ? OFFSET ?`,
		append(args, f.Limit, f.Offset)...,
	)
	if err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: list interventions")
	}
	defer rows.Close() //nolint:errcheck

	out := []model.Intervention{}
	for rows.Next() {
		iv, err := scanIntervention(rows)
		if err != nil {
			return nil, 0, eris.Wrap(err, "sqlite: scan intervention")
		}
		out = append(out, *iv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: iterate interventions")
	}
	return out, total, nil
}

func (s *SQLiteStore) UpdateIntervention(ctx context.Context, iv *model.Intervention) (bool, error) {
	cohort, geography, uses, contributors, metadata, err := interventionArgs(iv)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE alma_interventions SET name = ?, type = ?, description = ?, target_cohort = ?,
			geography = ?, evidence_level = ?, cultural_authority = ?, consent_level = ?,
			permitted_uses = ?, contributors = ?, operating_organization = ?, website = ?,
			metadata = ?, updated_at = ?
		WHERE id = ? AND review_status IN ('Draft', 'Community Review')`,
		iv.Name, nullIfEmpty(iv.Type), nullIfEmpty(iv.Description), string(cohort),
		string(geography), nullIfEmpty(iv.EvidenceLevel), nullIfEmpty(iv.CulturalAuthority), string(iv.ConsentLevel),
		string(uses), string(contributors), nullIfEmpty(iv.OperatingOrganization), nullIfEmpty(iv.Website),
		jsonText(metadata), iv.UpdatedAt, iv.ID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: update intervention %s", iv.ID)
	}
	return changed(res)
}

func (s *SQLiteStore) TransitionStatus(ctx context.Context, id string, from, to model.ReviewStatus, reviewer *string, at time.Time) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if reviewer != nil {
		res, err = s.db.ExecContext(ctx,
			`UPDATE alma_interventions SET review_status = ?, reviewed_by = ?, reviewed_at = ?, updated_at = ?
			WHERE id = ? AND review_status = ?`,
			string(to), *reviewer, at, at, id, string(from),
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE alma_interventions SET review_status = ?, updated_at = ? WHERE id = ? AND review_status = ?`,
			string(to), at, id, string(from),
		)
	}
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: transition intervention %s to %s", id, to)
	}
	return changed(res)
}

func (s *SQLiteStore) UpdateSignals(ctx context.Context, id string, sig model.PortfolioSignals) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE alma_interventions SET evidence_strength_signal = ?, community_authority_signal = ?,
			harm_risk_signal = ?, implementation_capability_signal = ?, option_value_signal = ?,
			portfolio_score = ?
		WHERE id = ?`,
		sig.EvidenceStrength, sig.CommunityAuthority, sig.HarmRisk,
		sig.ImplementationCapability, sig.OptionValue, sig.PortfolioScore, id,
	)
	return eris.Wrapf(err, "sqlite: update signals %s", id)
}

func (s *SQLiteStore) ReplaceLinks(ctx context.Context, id string, kind model.LinkKind, ids []string) error {
	table, column, err := linkTable(kind)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace links")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE intervention_id = ?`, id); err != nil {
		return eris.Wrapf(err, "sqlite: clear %s", table)
	}
	for _, linked := range ids {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO `+table+` (intervention_id, `+column+`) VALUES (?, ?)`, id, linked,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert %s", table)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit replace links")
}

func (s *SQLiteStore) AppendConsent(ctx context.Context, e *model.ConsentLedgerEntry) error {
	uses, err := marshalList(e.PermittedUses)
	if err != nil {
		return err
	}
	contributors, err := marshalList(e.Contributors)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO alma_consent_ledger (id, entity_type, entity_id, consent_level, permitted_uses,
			cultural_authority, contributors, consent_given_by, consent_given_at, consent_expires_at,
			consent_revoked, revenue_share_enabled, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.EntityType, e.EntityID, string(e.ConsentLevel), string(uses),
		nullIfEmpty(e.CulturalAuthority), string(contributors), nullIfEmpty(e.ConsentGivenBy), e.ConsentGivenAt, e.ConsentExpiresAt,
		e.Revoked, e.RevenueShareEnabled, nullIfEmpty(e.Notes), e.ConsentGivenAt,
	)
	return eris.Wrap(err, "sqlite: append consent")
}

func (s *SQLiteStore) LatestConsent(ctx context.Context, entityType, entityID string) (*model.ConsentLedgerEntry, error) {
	var (
		e                         model.ConsentLedgerEntry
		level                     string
		uses, contributors        []byte
		authority, givenBy, notes *string
	)
	// rowid breaks ties between rows written within the same clock tick.
	err := s.db.QueryRowContext(ctx,
		`SELECT id, entity_type, entity_id, consent_level, permitted_uses, cultural_authority,
			contributors, consent_given_by, consent_given_at, consent_expires_at,
			consent_revoked, revenue_share_enabled, notes
		FROM alma_consent_ledger
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		entityType, entityID,
	).Scan(&e.ID, &e.EntityType, &e.EntityID, &level, &uses, &authority,
		&contributors, &givenBy, &e.ConsentGivenAt, &e.ConsentExpiresAt,
		&e.Revoked, &e.RevenueShareEnabled, &notes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: latest consent")
	}
	return decodeConsent(e, level, uses, contributors, authority, givenBy, notes)
}

func (s *SQLiteStore) AppendUsage(ctx context.Context, e *model.UsageLogEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alma_usage_log (id, entity_type, entity_id, action, user_id, destination, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.EntityType, e.EntityID, string(e.Action), nullIfEmpty(e.UserID), nullIfEmpty(e.Destination), e.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: append usage")
}

func (s *SQLiteStore) ListUsage(ctx context.Context, entityType, entityID string, f model.UsageFilter) ([]model.UsageLogEntry, error) {
	query := `SELECT id, entity_type, entity_id, action, COALESCE(user_id, ''), COALESCE(destination, ''), created_at
		FROM alma_usage_log WHERE entity_type = ? AND entity_id = ?`
	args := []any{entityType, entityID}
	if f.Action != "" {
		query += " AND action = ?"
		args = append(args, string(f.Action))
	}
	if f.Since != nil {
		query += " AND created_at >= ?"
		args = append(args, *f.Since)
	}
	if f.Until != nil {
		query += " AND created_at <= ?"
		args = append(args, *f.Until)
	}
	query += " ORDER BY created_at DESC, rowid DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list usage")
	}
	defer rows.Close() //nolint:errcheck

	out := []model.UsageLogEntry{}
	for rows.Next() {
		var e model.UsageLogEntry
		var action string
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &action, &e.UserID, &e.Destination, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan usage")
		}
		e.Action = model.UsageAction(action)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate usage")
}
