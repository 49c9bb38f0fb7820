package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite. It has no
// portfolio signal calculator.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS organizations (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	slug       TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS alma_interventions (
	id                               TEXT PRIMARY KEY,
	name                             TEXT NOT NULL,
	type                             TEXT,
	description                      TEXT,
	target_cohort                    TEXT NOT NULL DEFAULT '[]',
	geography                        TEXT NOT NULL DEFAULT '[]',
	evidence_level                   TEXT,
	cultural_authority               TEXT,
	consent_level                    TEXT NOT NULL DEFAULT 'Strictly Private',
	permitted_uses                   TEXT NOT NULL DEFAULT '[]',
	contributors                     TEXT NOT NULL DEFAULT '[]',
	operating_organization           TEXT,
	website                          TEXT,
	linked_community_program_id      TEXT,
	review_status                    TEXT NOT NULL DEFAULT 'Draft',
	reviewed_by                      TEXT,
	reviewed_at                      DATETIME,
	evidence_strength_signal         REAL,
	community_authority_signal       REAL,
	harm_risk_signal                 REAL,
	implementation_capability_signal REAL,
	option_value_signal              REAL,
	portfolio_score                  REAL,
	metadata                         TEXT,
	created_at                       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at                       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_alma_interventions_status ON alma_interventions(review_status);
CREATE INDEX IF NOT EXISTS idx_alma_interventions_consent ON alma_interventions(consent_level);

CREATE TABLE IF NOT EXISTS registered_services (
	id                     TEXT PRIMARY KEY,
	name                   TEXT NOT NULL,
	organization           TEXT,
	organization_id        TEXT REFERENCES organizations(id),
	alma_intervention_id   TEXT REFERENCES alma_interventions(id),
	relationship_type      TEXT
);

CREATE TABLE IF NOT EXISTS alma_consent_ledger (
	id                    TEXT PRIMARY KEY,
	entity_type           TEXT NOT NULL,
	entity_id             TEXT NOT NULL,
	consent_level         TEXT NOT NULL,
	permitted_uses        TEXT NOT NULL DEFAULT '[]',
	cultural_authority    TEXT,
	contributors          TEXT NOT NULL DEFAULT '[]',
	consent_given_by      TEXT,
	consent_given_at      DATETIME NOT NULL,
	consent_expires_at    DATETIME,
	consent_revoked       INTEGER NOT NULL DEFAULT 0,
	revenue_share_enabled INTEGER NOT NULL DEFAULT 0,
	notes                 TEXT,
	created_at            DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alma_consent_entity ON alma_consent_ledger(entity_type, entity_id);

CREATE TABLE IF NOT EXISTS alma_usage_log (
	id          TEXT PRIMARY KEY,
	entity_type TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	action      TEXT NOT NULL,
	user_id     TEXT,
	destination TEXT,
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alma_usage_entity ON alma_usage_log(entity_type, entity_id);

CREATE TABLE IF NOT EXISTS alma_intervention_outcomes (
	intervention_id TEXT NOT NULL REFERENCES alma_interventions(id) ON DELETE CASCADE,
	outcome_id      TEXT NOT NULL,
	PRIMARY KEY (intervention_id, outcome_id)
);

CREATE TABLE IF NOT EXISTS alma_intervention_evidence (
	intervention_id TEXT NOT NULL REFERENCES alma_interventions(id) ON DELETE CASCADE,
	evidence_id     TEXT NOT NULL,
	PRIMARY KEY (intervention_id, evidence_id)
);

CREATE TABLE IF NOT EXISTS alma_intervention_contexts (
	intervention_id TEXT NOT NULL REFERENCES alma_interventions(id) ON DELETE CASCADE,
	context_id      TEXT NOT NULL,
	PRIMARY KEY (intervention_id, context_id)
);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// changed reports whether a conditional write touched any row.
func changed(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "rows affected")
	}
	return n > 0, nil
}

// jsonText converts encoded JSON to a TEXT argument, or NULL when empty.
func jsonText(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
