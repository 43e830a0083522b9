package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// IncrementCounter adds amount to the named counter for day.
func (s *Store) IncrementCounter(ctx context.Context, day, name string, amount int64, at time.Time) error {
	ctx = ensureContext(ctx)
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return incrementCounterTx(ctx, tx, day, name, amount, formatTime(at))
	})
}

func incrementCounterTx(ctx context.Context, tx *sql.Tx, day, name string, amount int64, ts string) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO daily_counters (day, name, value, updated_at) VALUES (?, ?, ?, ?)
         ON CONFLICT(day, name) DO UPDATE SET value = value + excluded.value, updated_at = excluded.updated_at`,
		day, name, amount, ts,
	); err != nil {
		return fmt.Errorf("increment counter %s: %w", name, err)
	}
	return nil
}

// CounterValues returns the stored counters for day.
func (s *Store) CounterValues(ctx context.Context, day string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT name, value FROM daily_counters WHERE day = ?`, day)
	if err != nil {
		return nil, fmt.Errorf("read counters for %s: %w", day, err)
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var (
			name  string
			value int64
		)
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, rows.Err()
}
