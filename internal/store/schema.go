package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion tracks schema.sql. There are no migrations: a mismatched
// database is refused and has to be moved aside.
const schemaVersion = 1

// ErrSchemaMismatch reports a database written by a different schema version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// requiredTables must all be present in an initialized database.
var requiredTables = []string{
	"budget_ledger",
	"daily_counters",
	"strategies",
	"production_jobs",
	"job_segments",
	"job_events",
}

func (s *Store) initSchema(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		version, found, err := readSchemaVersion(ctx, tx)
		if err != nil {
			return err
		}
		if !found {
			if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
				return fmt.Errorf("create schema: %w", err)
			}
			if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
				return fmt.Errorf("record schema version: %w", err)
			}
			return nil
		}
		if version != schemaVersion {
			return fmt.Errorf("%w: %s is at version %d, this build expects %d",
				ErrSchemaMismatch, s.path, version, schemaVersion)
		}
		return verifyTables(ctx, tx)
	})
}

func readSchemaVersion(ctx context.Context, tx *sql.Tx) (int, bool, error) {
	var version int
	err := tx.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case err == nil:
		return version, true, nil
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, nil
	case strings.Contains(err.Error(), "no such table"):
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
}

func verifyTables(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("scan table name: %w", err)
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list tables: %w", err)
	}

	var missing []string
	for _, name := range requiredTables {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing tables %s", ErrSchemaMismatch, strings.Join(missing, ", "))
	}
	return nil
}
