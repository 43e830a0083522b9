package store

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// Money is persisted as integer micro-units.
const moneyScale = 6

func toMicros(d decimal.Decimal) int64 {
	return d.Shift(moneyScale).Round(0).IntPart()
}

func fromMicros(v int64) decimal.Decimal {
	return decimal.New(v, -moneyScale)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, raw)
}

func parseNullTime(raw sql.NullString) *time.Time {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	t, err := parseTimeString(raw.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableFloat(value float64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullableInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
