package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/alma-cli/internal/db"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// Conditional writes issued once per program by the linker.
const (
	pgSetProgramOrganization = `UPDATE registered_services SET organization_id = $2
		WHERE id = $1 AND organization_id IS NULL`
	pgSetProgramIntervention = `UPDATE registered_services SET alma_intervention_id = $2, relationship_type = $3
		WHERE id = $1 AND alma_intervention_id IS NULL`
	pgClaimIntervention = `UPDATE alma_interventions SET linked_community_program_id = $2
		WHERE id = $1 AND (linked_community_program_id IS NULL OR linked_community_program_id = $2)`
)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

// calculate_portfolio_signals is owned by the analytics schema and is not
// created here.
const postgresMigration = `
CREATE TABLE IF NOT EXISTS organizations (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name       TEXT NOT NULL,
	slug       TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS alma_interventions (
	id                               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name                             TEXT NOT NULL,
	type                             TEXT,
	description                      TEXT,
	target_cohort                    JSONB NOT NULL DEFAULT '[]',
	geography                        JSONB NOT NULL DEFAULT '[]',
	evidence_level                   TEXT,
	cultural_authority               TEXT,
	consent_level                    TEXT NOT NULL DEFAULT 'Strictly Private',
	permitted_uses                   JSONB NOT NULL DEFAULT '[]',
	contributors                     JSONB NOT NULL DEFAULT '[]',
	operating_organization           TEXT,
	website                          TEXT,
	linked_community_program_id      TEXT,
	review_status                    TEXT NOT NULL DEFAULT 'Draft',
	reviewed_by                      TEXT,
	reviewed_at                      TIMESTAMPTZ,
	evidence_strength_signal         DOUBLE PRECISION,
	community_authority_signal       DOUBLE PRECISION,
	harm_risk_signal                 DOUBLE PRECISION,
	implementation_capability_signal DOUBLE PRECISION,
	option_value_signal              DOUBLE PRECISION,
	portfolio_score                  DOUBLE PRECISION,
	metadata                         JSONB,
	created_at                       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at                       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_alma_interventions_status ON alma_interventions(review_status);
CREATE INDEX IF NOT EXISTS idx_alma_interventions_consent ON alma_interventions(consent_level);
CREATE INDEX IF NOT EXISTS idx_alma_interventions_score ON alma_interventions(portfolio_score DESC NULLS LAST);

CREATE TABLE IF NOT EXISTS registered_services (
	id                     TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name                   TEXT NOT NULL,
	organization           TEXT,
	organization_id        TEXT REFERENCES organizations(id),
	alma_intervention_id   TEXT REFERENCES alma_interventions(id),
	relationship_type      TEXT
);

CREATE INDEX IF NOT EXISTS idx_registered_services_org ON registered_services(organization_id);
CREATE INDEX IF NOT EXISTS idx_registered_services_alma ON registered_services(alma_intervention_id);

CREATE TABLE IF NOT EXISTS alma_consent_ledger (
	id                    TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	entity_type           TEXT NOT NULL,
	entity_id             TEXT NOT NULL,
	consent_level         TEXT NOT NULL,
	permitted_uses        JSONB NOT NULL DEFAULT '[]',
	cultural_authority    TEXT,
	contributors          JSONB NOT NULL DEFAULT '[]',
	consent_given_by      TEXT,
	consent_given_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	consent_expires_at    TIMESTAMPTZ,
	consent_revoked       BOOLEAN NOT NULL DEFAULT false,
	revenue_share_enabled BOOLEAN NOT NULL DEFAULT false,
	notes                 TEXT,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_alma_consent_entity ON alma_consent_ledger(entity_type, entity_id, created_at DESC);

CREATE TABLE IF NOT EXISTS alma_usage_log (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	entity_type TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	action      TEXT NOT NULL,
	user_id     TEXT,
	destination TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_alma_usage_entity ON alma_usage_log(entity_type, entity_id, created_at DESC);

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

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}
