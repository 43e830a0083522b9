package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBudget(); err != nil {
		return err
	}
	if err := c.validatePricing(); err != nil {
		return err
	}
	if err := c.validateSegments(); err != nil {
		return err
	}
	if err := c.validateNarration(); err != nil {
		return err
	}
	if err := c.validateAssembly(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return ensurePositiveMap(map[string]int{
		"segments.concurrency":           c.Segments.Concurrency,
		"segments.duration_seconds":      c.Segments.DurationSeconds,
		"segments.timeout_seconds":       c.Segments.TimeoutSeconds,
		"segments.poll_interval_seconds": c.Segments.PollIntervalSeconds,
		"narration.timeout_seconds":      c.Narration.TimeoutSeconds,
		"notifications.request_timeout":  c.Notifications.RequestTimeout,
		"workflow.stale_work_dir_hours":  c.Workflow.StaleWorkDirHours,
	})
}

func (c *Config) validateBudget() error {
	if c.Budget.DailyLimit < 0 {
		return errors.New("budget.daily_limit must be >= 0")
	}
	if c.Budget.MonthlyLimit < 0 {
		return errors.New("budget.monthly_limit must be >= 0")
	}
	if c.Budget.WarningThreshold <= 0 || c.Budget.WarningThreshold > 1 {
		return errors.New("budget.warning_threshold must be within (0, 1]")
	}
	if tz := c.Budget.Timezone; !strings.EqualFold(tz, "local") {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("budget.timezone: %w", err)
		}
	}
	return nil
}

func (c *Config) validatePricing() error {
	prices := map[string]float64{
		"pricing.scrape_per_result":          c.Pricing.ScrapePerResult,
		"pricing.analysis_per_call":          c.Pricing.AnalysisPerCall,
		"pricing.strategy_per_call":          c.Pricing.StrategyPerCall,
		"pricing.segment_test":               c.Pricing.SegmentTest,
		"pricing.segment_production":         c.Pricing.SegmentProduction,
		"pricing.narration_premium_per_char": c.Pricing.NarrationPremiumPerChar,
	}
	for key, value := range prices {
		if value < 0 {
			return fmt.Errorf("%s must be >= 0", key)
		}
	}
	return nil
}

func (c *Config) validateSegments() error {
	switch c.Segments.Mode {
	case ModeTest, ModeProduction:
	default:
		return fmt.Errorf("segments.mode must be %q or %q, got %q", ModeTest, ModeProduction, c.Segments.Mode)
	}
	if c.Segments.MinSuccessful < 1 {
		return errors.New("segments.min_successful must be >= 1")
	}
	if _, _, ok := ParseAspectRatio(c.Segments.AspectRatio); !ok {
		return fmt.Errorf("segments.aspect_ratio: unsupported value %q", c.Segments.AspectRatio)
	}
	return nil
}

func (c *Config) validateNarration() error {
	if !validProvider(c.Narration.Primary) {
		return fmt.Errorf("narration.primary: unsupported provider %q", c.Narration.Primary)
	}
	if c.Narration.Fallback != "" {
		if !validProvider(c.Narration.Fallback) {
			return fmt.Errorf("narration.fallback: unsupported provider %q", c.Narration.Fallback)
		}
		if c.Narration.Fallback == c.Narration.Primary {
			return errors.New("narration.fallback must differ from narration.primary")
		}
	}
	if c.UsesProvider(ProviderPremium) && c.Narration.PremiumVoiceID == "" {
		return errors.New("narration.premium_voice_id must be set when the premium provider is used")
	}
	return nil
}

func (c *Config) validateAssembly() error {
	if c.Assembly.MusicVolume < 0 || c.Assembly.MusicVolume > 1 {
		return errors.New("assembly.music_volume must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageLocal:
		return nil
	case StorageMinIO:
		if c.Storage.Endpoint == "" {
			return errors.New("storage.endpoint must be set when storage.backend is minio")
		}
		return nil
	default:
		return fmt.Errorf("storage.backend: unsupported value %q", c.Storage.Backend)
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	return nil
}

func validProvider(name string) bool {
	return name == ProviderEdge || name == ProviderPremium
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
