package budget

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"reelforge/internal/logging"
	"reelforge/internal/pricing"
	"reelforge/internal/services"
)

// DefaultWarningThreshold is the fraction of the limit at which admissions report "near limit".
const DefaultWarningThreshold = 0.8

// Options configures a Ledger.
type Options struct {
	DailyLimit       decimal.Decimal
	MonthlyLimit     decimal.Decimal
	WarningThreshold float64
	AbortOnExceed    bool
	Location         *time.Location
	Clock            func() time.Time
	Logger           *slog.Logger
	Notifier         Notifier
}

func (o Options) withDefaults() Options {
	if o.WarningThreshold <= 0 {
		o.WarningThreshold = DefaultWarningThreshold
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed   bool
	NearLimit bool
	Estimated decimal.Decimal
	Spent     decimal.Decimal
	Reserved  decimal.Decimal
	Limit     decimal.Decimal
	Message   string
}

// Remaining is the headroom left after the check's amount.
func (d Decision) Remaining() decimal.Decimal {
	return d.Limit.Sub(d.Spent).Sub(d.Reserved).Sub(d.Estimated)
}

// Charge is one actual cost to record.
type Charge struct {
	Category    pricing.Category
	Amount      decimal.Decimal
	Quantity    int64
	Reservation *Reservation
	Counters    []CounterDelta
}

// Reservation is money held against a day's limit for an in-flight job.
type Reservation struct {
	ID      string
	Day     string
	Purpose string
	Amount  decimal.Decimal

	mu        sync.Mutex
	remaining decimal.Decimal
}

// Remaining returns the part of the hold not yet consumed or released.
func (r *Reservation) Remaining() decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remaining
}

// Status is a read-only snapshot of the current day.
type Status struct {
	Day          string
	Limit        decimal.Decimal
	Spent        decimal.Decimal
	Reserved     decimal.Decimal
	Remaining    decimal.Decimal
	UsagePercent float64
	Exceeded     bool
	ExceededAt   *time.Time
	APICalls     int64
	Breakdown    map[pricing.Category]decimal.Decimal
	Counters     map[string]int64
	MonthSpent   decimal.Decimal
	MonthlyLimit decimal.Decimal
}

// Ledger enforces the daily ceiling over a Store.
type Ledger struct {
	store   Store
	catalog pricing.Catalog
	opts    Options
	logger  *slog.Logger

	mu       sync.Mutex
	dayLocks map[string]*sync.Mutex
}

// New constructs a Ledger.
func New(store Store, catalog pricing.Catalog, opts Options) *Ledger {
	opts = opts.withDefaults()
	return &Ledger{
		store:    store,
		catalog:  catalog,
		opts:     opts,
		logger:   logging.NewComponentLogger(opts.Logger, "budget"),
		dayLocks: make(map[string]*sync.Mutex),
	}
}

// Catalog returns the pricing catalog used for estimates.
func (l *Ledger) Catalog() pricing.Catalog {
	return l.catalog
}

// Today returns the current ledger day key.
func (l *Ledger) Today() string {
	return l.dayOf(l.opts.Clock())
}

func (l *Ledger) dayOf(t time.Time) string {
	return t.In(l.opts.Location).Format(DayLayout)
}

// lockDays acquires the per-day mutexes in sorted order and returns the unlock func.
func (l *Ledger) lockDays(days ...string) func() {
	unique := make([]string, 0, len(days))
	seen := make(map[string]struct{}, len(days))
	for _, d := range days {
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		unique = append(unique, d)
	}
	sort.Strings(unique)

	l.mu.Lock()
	locks := make([]*sync.Mutex, 0, len(unique))
	for _, d := range unique {
		m, ok := l.dayLocks[d]
		if !ok {
			m = &sync.Mutex{}
			l.dayLocks[d] = m
		}
		locks = append(locks, m)
	}
	l.mu.Unlock()

	for _, m := range locks {
		m.Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

// CheckBudget previews whether quantity units of category fit today's budget.
// It never writes.
func (l *Ledger) CheckBudget(ctx context.Context, category pricing.Category, quantity int64, mode pricing.Mode) (Decision, error) {
	estimated, err := l.catalog.PriceOf(category, quantity, mode)
	if err != nil {
		return Decision{}, err
	}
	return l.CheckAmount(ctx, estimated)
}

// CheckAmount previews whether amount fits today's budget. It never writes.
func (l *Ledger) CheckAmount(ctx context.Context, amount decimal.Decimal) (Decision, error) {
	if amount.IsNegative() {
		return Decision{}, services.Wrap(services.ErrValidation, "budget", "check", "negative amount", nil)
	}
	rec, err := l.currentRecord(ctx, l.Today())
	if err != nil {
		return Decision{}, err
	}
	return l.decide(rec, amount), nil
}

// CanProduce reports whether a production estimated at estimate fits today's budget.
func (l *Ledger) CanProduce(ctx context.Context, estimate decimal.Decimal) (bool, string, error) {
	decision, err := l.CheckAmount(ctx, estimate)
	if err != nil {
		return false, "", err
	}
	return decision.Allowed, decision.Message, nil
}

func (l *Ledger) decide(rec Record, amount decimal.Decimal) Decision {
	d := Decision{
		Estimated: amount,
		Spent:     rec.TotalSpent,
		Reserved:  rec.Reserved,
		Limit:     rec.DailyLimit,
	}
	projected := rec.TotalSpent.Add(rec.Reserved).Add(amount)
	if projected.GreaterThan(rec.DailyLimit) {
		d.Message = fmt.Sprintf("budget exceeded: limit $%s, current $%s, reserved $%s, operation $%s",
			rec.DailyLimit.StringFixed(2), rec.TotalSpent.StringFixed(2), rec.Reserved.StringFixed(2), amount.StringFixed(4))
		return d
	}
	d.Allowed = true
	ratio := usageRatio(projected, rec.DailyLimit)
	if ratio >= l.opts.WarningThreshold {
		d.NearLimit = true
		d.Message = fmt.Sprintf("near limit: budget at %.1f%% of daily limit", ratio*100)
		return d
	}
	d.Message = "OK"
	return d
}

func usageRatio(spent, limit decimal.Decimal) float64 {
	if !limit.IsPositive() {
		return 1
	}
	ratio, _ := spent.Div(limit).Float64()
	return ratio
}

// Reserve atomically holds amount against today's limit. A denied request
// returns an error matching ErrAdmissionDenied along with the decision that
// explains it; nothing is written in that case.
func (l *Ledger) Reserve(ctx context.Context, amount decimal.Decimal, purpose string) (*Reservation, Decision, error) {
	if amount.IsNegative() {
		return nil, Decision{}, services.Wrap(services.ErrValidation, "budget", "reserve", "negative amount", nil)
	}
	now := l.opts.Clock()
	day := l.dayOf(now)

	unlock := l.lockDays(day)
	defer unlock()

	if err := l.store.EnsureLedgerDay(ctx, day, l.opts.DailyLimit, l.opts.MonthlyLimit, now); err != nil {
		return nil, Decision{}, fmt.Errorf("ensure ledger day: %w", err)
	}
	ok, err := l.store.ReserveBudget(ctx, day, amount, now)
	if err != nil {
		return nil, Decision{}, fmt.Errorf("reserve budget: %w", err)
	}
	rec, found, err := l.store.LedgerRecord(ctx, day)
	if err != nil {
		return nil, Decision{}, fmt.Errorf("read ledger: %w", err)
	}
	if !found {
		rec = l.emptyRecord(day)
	}

	if !ok {
		decision := l.decide(rec, amount)
		decision.Allowed = false
		decision.NearLimit = false
		logging.WarnWithContext(logging.WithContext(ctx, l.logger), "budget admission denied", "admission_denied",
			logging.String("purpose", purpose),
			logging.Money(logging.FieldCost, amount),
			logging.Money("spent", rec.TotalSpent),
			logging.Money("reserved", rec.Reserved),
			logging.Money("limit", rec.DailyLimit),
			logging.String(logging.FieldErrorHint, "raise budget.daily_limit or wait for the next day"),
			logging.String(logging.FieldImpact, "job was not started"),
		)
		return nil, decision, fmt.Errorf("%w: %s", ErrAdmissionDenied, decision.Message)
	}

	// rec already includes this hold; judge the decision against the state before it.
	before := rec
	before.Reserved = rec.Reserved.Sub(amount)
	decision := l.decide(before, amount)

	res := &Reservation{
		ID:        uuid.NewString(),
		Day:       day,
		Purpose:   purpose,
		Amount:    amount,
		remaining: amount,
	}
	l.logger.Info("budget reserved",
		logging.String(logging.FieldEventType, "budget_reserved"),
		logging.String("reservation_id", res.ID),
		logging.String("purpose", purpose),
		logging.Money(logging.FieldCost, amount),
		logging.Money("reserved", rec.Reserved),
		logging.Money("limit", rec.DailyLimit),
	)
	if decision.NearLimit {
		l.maybeWarn(ctx, day, rec.TotalSpent.Add(rec.Reserved), rec.DailyLimit, now)
	}
	return res, decision, nil
}

// RegisterCost records an actual cost for today. The spend, the API call count,
// the reservation consumption, and the paired counters commit together. If the
// day ends above its limit and the ledger aborts on overage, the updated record
// is returned together with a *BudgetExceededError.
func (l *Ledger) RegisterCost(ctx context.Context, charge Charge) (Record, error) {
	if !charge.Category.Valid() {
		return Record{}, services.Wrap(services.ErrConfiguration, "budget", "register cost", fmt.Sprintf("unknown category %q", charge.Category), nil)
	}
	if charge.Amount.IsNegative() {
		return Record{}, services.Wrap(services.ErrValidation, "budget", "register cost", "negative amount", nil)
	}
	now := l.opts.Clock()
	day := l.dayOf(now)

	res := charge.Reservation
	releaseDay := ""
	if res != nil {
		releaseDay = res.Day
	}
	unlock := l.lockDays(day, releaseDay)
	defer unlock()

	if err := l.store.EnsureLedgerDay(ctx, day, l.opts.DailyLimit, l.opts.MonthlyLimit, now); err != nil {
		return Record{}, fmt.Errorf("ensure ledger day: %w", err)
	}

	release := decimal.Zero
	if res != nil {
		res.mu.Lock()
		defer res.mu.Unlock()
		release = decimal.Min(res.remaining, charge.Amount)
	}

	rec, flipped, err := l.store.ApplyCharge(ctx, Entry{
		Day:        day,
		Category:   charge.Category,
		Amount:     charge.Amount,
		ReleaseDay: releaseDay,
		Release:    release,
		Counters:   filterCounters(charge.Counters),
		At:         now,
	})
	if err != nil {
		return Record{}, fmt.Errorf("apply charge: %w", err)
	}
	if res != nil {
		res.remaining = res.remaining.Sub(release)
	}

	logger := logging.WithContext(ctx, l.logger)
	logger.Info("cost registered",
		logging.String(logging.FieldEventType, "cost_registered"),
		logging.String(logging.FieldCategory, string(charge.Category)),
		logging.Money(logging.FieldCost, charge.Amount),
		logging.Int64("quantity", charge.Quantity),
		logging.Money("total_spent", rec.TotalSpent),
		logging.Money("limit", rec.DailyLimit),
	)

	over := rec.TotalSpent.GreaterThan(rec.DailyLimit)
	if flipped {
		logging.WarnWithContext(logger, "daily budget exceeded", "budget_exceeded",
			logging.Money("total_spent", rec.TotalSpent),
			logging.Money("limit", rec.DailyLimit),
			logging.Alert("budget"),
			logging.String(logging.FieldErrorHint, "review spend with reelforge budget status"),
			logging.String(logging.FieldImpact, "running jobs abort when abort_on_exceed is set"),
		)
		if l.opts.Notifier != nil {
			if err := l.opts.Notifier.NotifyBudgetExceeded(ctx, day, rec.TotalSpent, rec.DailyLimit); err != nil {
				logger.Debug("budget exceeded notification failed", logging.Error(err))
			}
		}
	} else if !over && usageRatio(rec.TotalSpent, rec.DailyLimit) >= l.opts.WarningThreshold {
		l.maybeWarn(ctx, day, rec.TotalSpent, rec.DailyLimit, now)
	}

	if over && l.opts.AbortOnExceed {
		return rec, &BudgetExceededError{
			Day:      day,
			Limit:    rec.DailyLimit,
			Spent:    rec.TotalSpent,
			Category: charge.Category,
			Amount:   charge.Amount,
		}
	}
	return rec, nil
}

// Release returns the unused remainder of res to its day. Safe to call more than once.
func (l *Ledger) Release(ctx context.Context, res *Reservation) error {
	if res == nil {
		return nil
	}
	unlock := l.lockDays(res.Day)
	defer unlock()

	res.mu.Lock()
	defer res.mu.Unlock()
	if !res.remaining.IsPositive() {
		return nil
	}
	if err := l.store.ReleaseBudget(ctx, res.Day, res.remaining, l.opts.Clock()); err != nil {
		return fmt.Errorf("release reservation %s: %w", res.ID, err)
	}
	l.logger.Debug("reservation released",
		logging.String("reservation_id", res.ID),
		logging.Money(logging.FieldCost, res.remaining),
	)
	res.remaining = decimal.Zero
	return nil
}

// DailyStatus returns a snapshot of today without creating the ledger row.
func (l *Ledger) DailyStatus(ctx context.Context) (Status, error) {
	now := l.opts.Clock()
	day := l.dayOf(now)
	rec, err := l.currentRecord(ctx, day)
	if err != nil {
		return Status{}, err
	}
	counters, err := l.store.CounterValues(ctx, day)
	if err != nil {
		return Status{}, fmt.Errorf("read counters: %w", err)
	}
	monthSpent, err := l.store.MonthSpent(ctx, now.In(l.opts.Location).Format("2006-01"))
	if err != nil {
		return Status{}, fmt.Errorf("read month spend: %w", err)
	}

	remaining := rec.DailyLimit.Sub(rec.TotalSpent)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	usage := 100.0
	if rec.DailyLimit.IsPositive() {
		usage, _ = rec.TotalSpent.Div(rec.DailyLimit).Mul(decimal.NewFromInt(100)).Round(2).Float64()
	}
	return Status{
		Day:          day,
		Limit:        rec.DailyLimit,
		Spent:        rec.TotalSpent,
		Reserved:     rec.Reserved,
		Remaining:    remaining,
		UsagePercent: usage,
		Exceeded:     rec.Exceeded,
		ExceededAt:   rec.ExceededAt,
		APICalls:     rec.APICalls,
		Breakdown:    rec.Spent,
		Counters:     fillCounters(counters),
		MonthSpent:   monthSpent,
		MonthlyLimit: rec.MonthlyLimit,
	}, nil
}

func (l *Ledger) currentRecord(ctx context.Context, day string) (Record, error) {
	rec, found, err := l.store.LedgerRecord(ctx, day)
	if err != nil {
		return Record{}, fmt.Errorf("read ledger: %w", err)
	}
	if !found {
		return l.emptyRecord(day), nil
	}
	return rec, nil
}

func (l *Ledger) emptyRecord(day string) Record {
	spent := make(map[pricing.Category]decimal.Decimal, len(pricing.Categories()))
	for _, c := range pricing.Categories() {
		spent[c] = decimal.Zero
	}
	return Record{
		Day:          day,
		DailyLimit:   l.opts.DailyLimit,
		MonthlyLimit: l.opts.MonthlyLimit,
		Spent:        spent,
	}
}

func (l *Ledger) maybeWarn(ctx context.Context, day string, spent, limit decimal.Decimal, now time.Time) {
	first, err := l.store.MarkWarned(ctx, day, now)
	if err != nil {
		l.logger.Debug("mark warned failed", logging.Error(err))
		return
	}
	if !first {
		return
	}
	logging.WarnWithContext(logging.WithContext(ctx, l.logger), "budget near limit", "budget_near_limit",
		logging.Money("spent", spent),
		logging.Money("limit", limit),
		logging.Float64("threshold", l.opts.WarningThreshold),
		logging.String(logging.FieldErrorHint, "review pending productions before the limit is reached"),
		logging.String(logging.FieldImpact, "further admissions may be denied today"),
	)
	if l.opts.Notifier != nil {
		if err := l.opts.Notifier.NotifyBudgetWarning(ctx, day, spent, limit); err != nil {
			l.logger.Debug("budget warning notification failed", logging.Error(err))
		}
	}
}
