package budget

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"reelforge/internal/pricing"
)

// DayLayout is the ledger day key format.
const DayLayout = "2006-01-02"

// Record is one day's ledger row.
type Record struct {
	Day          string
	DailyLimit   decimal.Decimal
	MonthlyLimit decimal.Decimal
	Spent        map[pricing.Category]decimal.Decimal
	TotalSpent   decimal.Decimal
	Reserved     decimal.Decimal
	Exceeded     bool
	ExceededAt   *time.Time
	APICalls     int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CounterDelta pairs a counter name with an increment.
type CounterDelta struct {
	Name   string
	Amount int64
}

// Entry is a fully resolved charge handed to the store. Release is the part of
// a reservation held on ReleaseDay that this charge consumes.
type Entry struct {
	Day        string
	Category   pricing.Category
	Amount     decimal.Decimal
	ReleaseDay string
	Release    decimal.Decimal
	Counters   []CounterDelta
	At         time.Time
}

// CounterStore persists per-day counters.
type CounterStore interface {
	IncrementCounter(ctx context.Context, day, name string, amount int64, at time.Time) error
	CounterValues(ctx context.Context, day string) (map[string]int64, error)
}

// Store persists ledger rows. Implementations must apply each method
// atomically; ReserveBudget must only add to reserved when
// total_spent + reserved + amount stays within the day's limit.
type Store interface {
	CounterStore
	EnsureLedgerDay(ctx context.Context, day string, dailyLimit, monthlyLimit decimal.Decimal, at time.Time) error
	ReserveBudget(ctx context.Context, day string, amount decimal.Decimal, at time.Time) (bool, error)
	ApplyCharge(ctx context.Context, entry Entry) (Record, bool, error)
	ReleaseBudget(ctx context.Context, day string, amount decimal.Decimal, at time.Time) error
	LedgerRecord(ctx context.Context, day string) (Record, bool, error)
	MonthSpent(ctx context.Context, month string) (decimal.Decimal, error)
	MarkWarned(ctx context.Context, day string, at time.Time) (bool, error)
}

// Notifier receives budget threshold events.
type Notifier interface {
	NotifyBudgetWarning(ctx context.Context, day string, spent, limit decimal.Decimal) error
	NotifyBudgetExceeded(ctx context.Context, day string, spent, limit decimal.Decimal) error
}
