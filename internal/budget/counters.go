package budget

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"reelforge/internal/logging"
)

// Known counter names.
const (
	CounterScrapingRuns          = "scraping_runs"
	CounterVideosCollected       = "videos_collected"
	CounterVideosAnalyzed        = "videos_analyzed"
	CounterStrategiesGenerated   = "strategies_generated"
	CounterVideosProduced        = "videos_produced"
	CounterSegmentsGenerated     = "segments_generated"
	CounterNarrationCharsUsed    = "narration_chars_used"
	CounterNarrationFreeCalls    = "narration_free_calls"
	CounterNarrationPremiumCalls = "narration_premium_calls"
)

var counterNames = []string{
	CounterScrapingRuns,
	CounterVideosCollected,
	CounterVideosAnalyzed,
	CounterStrategiesGenerated,
	CounterVideosProduced,
	CounterSegmentsGenerated,
	CounterNarrationCharsUsed,
	CounterNarrationFreeCalls,
	CounterNarrationPremiumCalls,
}

// CounterNames returns the known counter names in display order.
func CounterNames() []string {
	return append([]string(nil), counterNames...)
}

// KnownCounter reports whether name is a tracked counter.
func KnownCounter(name string) bool {
	for _, known := range counterNames {
		if known == name {
			return true
		}
	}
	return false
}

// Counters increments per-day operational counters.
type Counters struct {
	store    CounterStore
	location *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

// NewCounters builds a counter tracker sharing the ledger's clock and zone.
func NewCounters(store CounterStore, opts Options) *Counters {
	opts = opts.withDefaults()
	return &Counters{
		store:    store,
		location: opts.Location,
		now:      opts.Clock,
		logger:   logging.NewComponentLogger(opts.Logger, "counters"),
	}
}

// Increment adds amount to name for today. Unknown names and non-positive
// amounts are ignored.
func (c *Counters) Increment(ctx context.Context, name string, amount int64) error {
	if !KnownCounter(name) {
		c.logger.Debug("ignoring unknown counter", logging.String("counter", name))
		return nil
	}
	if amount <= 0 {
		return nil
	}
	now := c.now()
	day := now.In(c.location).Format(DayLayout)
	if err := c.store.IncrementCounter(ctx, day, name, amount, now); err != nil {
		return fmt.Errorf("increment counter %s: %w", name, err)
	}
	return nil
}

// Snapshot returns every known counter for day, defaulting missing ones to 0.
// An empty day means today.
func (c *Counters) Snapshot(ctx context.Context, day string) (map[string]int64, error) {
	if day == "" {
		day = c.now().In(c.location).Format(DayLayout)
	}
	stored, err := c.store.CounterValues(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("read counters: %w", err)
	}
	return fillCounters(stored), nil
}

func fillCounters(stored map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(counterNames))
	for _, name := range counterNames {
		out[name] = stored[name]
	}
	return out
}

func filterCounters(deltas []CounterDelta) []CounterDelta {
	out := make([]CounterDelta, 0, len(deltas))
	for _, d := range deltas {
		if !KnownCounter(d.Name) || d.Amount <= 0 {
			continue
		}
		out = append(out, d)
	}
	return out
}
