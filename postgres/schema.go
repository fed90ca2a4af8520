package postgres

import "context"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS executed_configs (
    id         TEXT PRIMARY KEY,
    diagram_id TEXT NOT NULL,
    config     JSONB NOT NULL DEFAULT 'null',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS generated_contents (
    seq          BIGSERIAL,
    id           TEXT PRIMARY KEY,
    execution_id TEXT NOT NULL REFERENCES executed_configs(id) ON DELETE CASCADE,
    diagram_id   TEXT NOT NULL,
    node_id      TEXT NOT NULL,
    content      TEXT NOT NULL,
    is_terminal  BOOLEAN NOT NULL DEFAULT FALSE,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_executed_configs_diagram ON executed_configs(diagram_id);
CREATE INDEX IF NOT EXISTS idx_generated_contents_exec  ON generated_contents(execution_id, seq);
`

// CreateSchema creates the executed_configs and generated_contents tables if they don't exist.
func (s *PGStore) CreateSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schemaSQL)
	return err
}

// DropSchema drops the generated_contents and executed_configs tables.
func (s *PGStore) DropSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DROP TABLE IF EXISTS generated_contents, executed_configs CASCADE;`)
	return err
}
