package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// A step upgrades the graph schema by one version. Version 1 is the DDL
// in schemaSQL; later steps only append.
type step struct {
	version int
	summary string
	stmts   []string
}

var steps = []step{
	{version: 1, summary: "property graph tables"},
	{
		version: 2,
		summary: "case-insensitive name lookup index",
		stmts: []string{
			"CREATE INDEX IF NOT EXISTS idx_nodes_label_lower_name ON nodes(label, lower(name))",
		},
	},
	{
		version: 3,
		summary: "touch updated_at when node properties change",
		stmts: []string{`
CREATE TRIGGER IF NOT EXISTS nodes_touch AFTER UPDATE OF properties ON nodes BEGIN
	UPDATE nodes SET updated_at = CURRENT_TIMESTAMP WHERE id = new.id;
END`,
		},
	},
}

const versionTableSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    description TEXT,
    applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

// Migrate brings the schema up to the latest step. Each step runs in its
// own transaction, so a failure leaves earlier steps applied.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, versionTableSQL); err != nil {
		return fmt.Errorf("store: creating schema_version: %w", err)
	}
	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("store: reading schema version: %w", err)
	}
	for _, st := range steps {
		if st.version <= current {
			continue
		}
		slog.Info("store: migrating", "version", st.version, "summary", st.summary)
		if err := s.applyStep(ctx, st); err != nil {
			return fmt.Errorf("store: migration %d: %w", st.version, err)
		}
	}
	return nil
}

func (s *Store) applyStep(ctx context.Context, st step) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, q := range st.stmts {
		if _, err = tx.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	if err = recordVersion(ctx, tx, st); err != nil {
		return err
	}
	return tx.Commit()
}

func recordVersion(ctx context.Context, tx *sql.Tx, st step) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO schema_version (version, description) VALUES (?, ?)",
		st.version, st.summary)
	return err
}

// SchemaVersion returns the highest applied step, or 0 on a fresh database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&v)
	return v, err
}
