package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"reelforge/internal/budget"
	"reelforge/internal/pricing"
)

var categoryColumns = map[pricing.Category]string{
	pricing.CategoryScrape:           "scrape",
	pricing.CategoryAnalysis:         "analysis",
	pricing.CategoryStrategyGen:      "strategy_gen",
	pricing.CategorySegmentGen:       "segment_gen",
	pricing.CategoryNarrationPremium: "narration_premium",
}

const ledgerColumns = "day, daily_limit, monthly_limit, scrape, analysis, strategy_gen, segment_gen, narration_premium, total_spent, reserved, exceeded, exceeded_at, api_call_count, created_at, updated_at"

var _ budget.Store = (*Store)(nil)

// EnsureLedgerDay creates the day's row with the given limits if it does not exist.
func (s *Store) EnsureLedgerDay(ctx context.Context, day string, dailyLimit, monthlyLimit decimal.Decimal, at time.Time) error {
	ts := formatTime(at)
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO budget_ledger (day, daily_limit, monthly_limit, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(day) DO NOTHING`,
		day, toMicros(dailyLimit), toMicros(monthlyLimit), ts, ts,
	); err != nil {
		return fmt.Errorf("insert ledger day %s: %w", day, err)
	}
	return nil
}

// ReserveBudget adds amount to the day's reservations when it fits under the
// limit. It reports false, leaving the row unchanged, when it does not.
func (s *Store) ReserveBudget(ctx context.Context, day string, amount decimal.Decimal, at time.Time) (bool, error) {
	ctx = ensureContext(ctx)
	micros := toMicros(amount)
	var reserved bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE budget_ledger
             SET reserved = reserved + ?, updated_at = ?
             WHERE day = ? AND total_spent + reserved + ? <= daily_limit`,
			micros, formatTime(at), day, micros,
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		reserved = affected > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("reserve %s on %s: %w", amount, day, err)
	}
	return reserved, nil
}

// ApplyCharge commits one charge: category spend, API call count, reservation
// consumption, counters, and the exceeded flag. It reports whether this charge
// flipped the day to exceeded.
func (s *Store) ApplyCharge(ctx context.Context, entry budget.Entry) (budget.Record, bool, error) {
	column, ok := categoryColumns[entry.Category]
	if !ok {
		return budget.Record{}, false, fmt.Errorf("unknown category %q", entry.Category)
	}
	ctx = ensureContext(ctx)
	ts := formatTime(entry.At)

	var (
		rec     budget.Record
		flipped bool
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		flipped = false
		res, err := tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE budget_ledger
             SET %[1]s = %[1]s + ?, api_call_count = api_call_count + 1, updated_at = ?
             WHERE day = ?`, column),
			toMicros(entry.Amount), ts, entry.Day,
		)
		if err != nil {
			return fmt.Errorf("add spend: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return fmt.Errorf("ledger day %s missing", entry.Day)
		}

		if entry.ReleaseDay != "" && entry.Release.IsPositive() {
			if _, err := tx.ExecContext(ctx,
				`UPDATE budget_ledger SET reserved = MAX(reserved - ?, 0), updated_at = ? WHERE day = ?`,
				toMicros(entry.Release), ts, entry.ReleaseDay,
			); err != nil {
				return fmt.Errorf("consume reservation: %w", err)
			}
		}

		for _, delta := range entry.Counters {
			if err := incrementCounterTx(ctx, tx, entry.Day, delta.Name, delta.Amount, ts); err != nil {
				return err
			}
		}

		res, err = tx.ExecContext(ctx,
			`UPDATE budget_ledger SET exceeded = 1, exceeded_at = ?
             WHERE day = ? AND exceeded = 0 AND total_spent > daily_limit`,
			ts, entry.Day,
		)
		if err != nil {
			return fmt.Errorf("flag exceeded: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected > 0 {
			flipped = true
		}

		row := tx.QueryRowContext(ctx, "SELECT "+ledgerColumns+" FROM budget_ledger WHERE day = ?", entry.Day)
		rec, err = scanLedger(row)
		return err
	})
	if err != nil {
		return budget.Record{}, false, fmt.Errorf("apply %s charge on %s: %w", entry.Category, entry.Day, err)
	}
	return rec, flipped, nil
}

// ReleaseBudget returns amount of held reservations to the day.
func (s *Store) ReleaseBudget(ctx context.Context, day string, amount decimal.Decimal, at time.Time) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE budget_ledger SET reserved = MAX(reserved - ?, 0), updated_at = ? WHERE day = ?`,
		toMicros(amount), formatTime(at), day,
	); err != nil {
		return fmt.Errorf("release %s on %s: %w", amount, day, err)
	}
	return nil
}

// LedgerRecord reads the day's row. It reports false when the row does not exist.
func (s *Store) LedgerRecord(ctx context.Context, day string) (budget.Record, bool, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+ledgerColumns+" FROM budget_ledger WHERE day = ?", day)
	rec, err := scanLedger(row)
	if errors.Is(err, sql.ErrNoRows) {
		return budget.Record{}, false, nil
	}
	if err != nil {
		return budget.Record{}, false, fmt.Errorf("read ledger day %s: %w", day, err)
	}
	return rec, true, nil
}

// LedgerHistory returns up to limit most recent ledger rows.
func (s *Store) LedgerHistory(ctx context.Context, limit int) ([]budget.Record, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+ledgerColumns+" FROM budget_ledger ORDER BY day DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	defer rows.Close()
	var out []budget.Record
	for rows.Next() {
		rec, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MonthSpent sums total spend over the days of month ("YYYY-MM").
func (s *Store) MonthSpent(ctx context.Context, month string) (decimal.Decimal, error) {
	var total sql.NullInt64
	if err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT SUM(total_spent) FROM budget_ledger WHERE substr(day, 1, 7) = ?`, month,
	).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("sum month %s: %w", month, err)
	}
	return fromMicros(total.Int64), nil
}

// MarkWarned sets the day's warning flag and reports whether this call set it.
func (s *Store) MarkWarned(ctx context.Context, day string, at time.Time) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE budget_ledger SET warned = 1, updated_at = ? WHERE day = ? AND warned = 0`,
		formatTime(at), day,
	)
	if err != nil {
		return false, fmt.Errorf("mark warned %s: %w", day, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func scanLedger(scanner interface{ Scan(dest ...any) error }) (budget.Record, error) {
	var (
		day              string
		dailyLimit       int64
		monthlyLimit     int64
		scrape           int64
		analysis         int64
		strategyGen      int64
		segmentGen       int64
		narrationPremium int64
		totalSpent       int64
		reserved         int64
		exceeded         int64
		exceededAt       sql.NullString
		apiCalls         int64
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
	)
	if err := scanner.Scan(
		&day,
		&dailyLimit,
		&monthlyLimit,
		&scrape,
		&analysis,
		&strategyGen,
		&segmentGen,
		&narrationPremium,
		&totalSpent,
		&reserved,
		&exceeded,
		&exceededAt,
		&apiCalls,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return budget.Record{}, err
	}
	rec := budget.Record{
		Day:          day,
		DailyLimit:   fromMicros(dailyLimit),
		MonthlyLimit: fromMicros(monthlyLimit),
		Spent: map[pricing.Category]decimal.Decimal{
			pricing.CategoryScrape:           fromMicros(scrape),
			pricing.CategoryAnalysis:         fromMicros(analysis),
			pricing.CategoryStrategyGen:      fromMicros(strategyGen),
			pricing.CategorySegmentGen:       fromMicros(segmentGen),
			pricing.CategoryNarrationPremium: fromMicros(narrationPremium),
		},
		TotalSpent: fromMicros(totalSpent),
		Reserved:   fromMicros(reserved),
		Exceeded:   exceeded != 0,
		ExceededAt: parseNullTime(exceededAt),
		APICalls:   apiCalls,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		rec.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		rec.UpdatedAt = updated
	}
	return rec, nil
}
