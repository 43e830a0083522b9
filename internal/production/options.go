package production

import (
	"strings"

	"reelforge/internal/config"
	"reelforge/internal/narration"
	"reelforge/internal/pricing"
)

// ProduceOptions tunes one production run. Zero fields take the runner's
// defaults.
type ProduceOptions struct {
	Mode            pricing.Mode
	MinSuccessful   int
	Concurrency     int
	SegmentDuration int
	AspectRatio     string
	Voice           narration.Voice
}

// DefaultOptions derives options from configuration.
func DefaultOptions(cfg *config.Config) ProduceOptions {
	if cfg == nil {
		return ProduceOptions{Mode: pricing.ModeTest, MinSuccessful: 1}
	}
	return ProduceOptions{
		Mode:            pricing.Mode(cfg.Segments.Mode),
		MinSuccessful:   cfg.Segments.MinSuccessful,
		Concurrency:     cfg.Segments.Concurrency,
		SegmentDuration: cfg.Segments.DurationSeconds,
		AspectRatio:     cfg.Segments.AspectRatio,
		Voice:           narration.Voice{ID: cfg.Narration.Voice, Language: cfg.Narration.Language},
	}
}

// merge fills zero fields of o from defaults.
func (o ProduceOptions) merge(defaults ProduceOptions) ProduceOptions {
	if o.Mode == "" {
		o.Mode = defaults.Mode
	}
	if o.MinSuccessful <= 0 {
		o.MinSuccessful = defaults.MinSuccessful
	}
	if o.MinSuccessful <= 0 {
		o.MinSuccessful = 1
	}
	if o.Concurrency <= 0 {
		o.Concurrency = defaults.Concurrency
	}
	if o.SegmentDuration <= 0 {
		o.SegmentDuration = defaults.SegmentDuration
	}
	if strings.TrimSpace(o.AspectRatio) == "" {
		o.AspectRatio = defaults.AspectRatio
	}
	if strings.TrimSpace(o.Voice.ID) == "" {
		o.Voice.ID = defaults.Voice.ID
	}
	if strings.TrimSpace(o.Voice.Language) == "" {
		o.Voice.Language = defaults.Voice.Language
	}
	return o
}
