package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"
)

//go:embed sample_config.toml
var sampleConfig string

// Narration provider identifiers.
const (
	ProviderEdge    = "edge"
	ProviderPremium = "premium"
)

// Storage backend identifiers.
const (
	StorageLocal = "local"
	StorageMinIO = "minio"
)

// Segment quality modes.
const (
	ModeTest       = "test"
	ModeProduction = "production"
)

// Paths contains directory configuration.
type Paths struct {
	StateDir     string `toml:"state_dir"`
	StagingDir   string `toml:"staging_dir"`
	LogDir       string `toml:"log_dir"`
	ArtifactsDir string `toml:"artifacts_dir"`
	MusicDir     string `toml:"music_dir"`
}

// Budget contains the daily spending ceiling and overage policy.
type Budget struct {
	DailyLimit       float64 `toml:"daily_limit"`
	MonthlyLimit     float64 `toml:"monthly_limit"`
	WarningThreshold float64 `toml:"warning_threshold"`
	AbortOnExceed    bool    `toml:"abort_on_exceed"`
	Timezone         string  `toml:"timezone"`
}

// Pricing holds per-unit prices for every cost catalog category.
type Pricing struct {
	ScrapePerResult         float64 `toml:"scrape_per_result"`
	AnalysisPerCall         float64 `toml:"analysis_per_call"`
	StrategyPerCall         float64 `toml:"strategy_per_call"`
	SegmentTest             float64 `toml:"segment_test"`
	SegmentProduction       float64 `toml:"segment_production"`
	NarrationPremiumPerChar float64 `toml:"narration_premium_per_char"`
}

// Segments contains video segment generation settings.
type Segments struct {
	Mode                string `toml:"mode"`
	Concurrency         int    `toml:"concurrency"`
	DurationSeconds     int    `toml:"duration_seconds"`
	AspectRatio         string `toml:"aspect_ratio"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
	PromptSuffix        string `toml:"prompt_suffix"`
	MinSuccessful       int    `toml:"min_successful"`
	BaseURL             string `toml:"base_url"`
	APIKey              string `toml:"api_key"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
}

// Narration contains speech synthesis settings.
type Narration struct {
	Primary        string `toml:"primary"`
	Fallback       string `toml:"fallback"`
	Voice          string `toml:"voice"`
	Language       string `toml:"language"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	EdgeBinary     string `toml:"edge_binary"`
	PremiumBaseURL string `toml:"premium_base_url"`
	PremiumAPIKey  string `toml:"premium_api_key"`
	PremiumVoiceID string `toml:"premium_voice_id"`
}

// Assembly contains media toolchain settings.
type Assembly struct {
	FFmpegBinary  string  `toml:"ffmpeg_binary"`
	FFprobeBinary string  `toml:"ffprobe_binary"`
	MusicVolume   float64 `toml:"music_volume"`
	AudioBitrate  string  `toml:"audio_bitrate"`
}

// Storage contains artifact store settings.
type Storage struct {
	Backend   string `toml:"backend"`
	Endpoint  string `toml:"endpoint"`
	Bucket    string `toml:"bucket"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Jobs           bool   `toml:"jobs"`
	Budget         bool   `toml:"budget"`
}

// Workflow contains job housekeeping settings.
type Workflow struct {
	StaleWorkDirHours int `toml:"stale_work_dir_hours"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for reelforge.
//
// Configuration sections by subsystem:
//   - Paths: state database, staging, logs, local artifacts, music library
//   - Budget: daily/monthly ceilings, warning fraction, abort-on-overage
//   - Pricing: cost catalog unit prices
//   - Segments: video generation backend, concurrency, mode, timeouts
//   - Narration: primary/fallback speech providers
//   - Assembly: ffmpeg/ffprobe binaries and mixing defaults
//   - Storage: artifact store backend (local or MinIO)
//   - Notifications: ntfy push notification settings
//   - Workflow: work directory housekeeping
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Budget        Budget        `toml:"budget"`
	Pricing       Pricing       `toml:"pricing"`
	Segments      Segments      `toml:"segments"`
	Narration     Narration     `toml:"narration"`
	Assembly      Assembly      `toml:"assembly"`
	Storage       Storage       `toml:"storage"`
	Notifications Notifications `toml:"notifications"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("reelforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the CLI and job runner write to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StateDir, c.Paths.StagingDir, c.Paths.LogDir}
	if c.Storage.Backend == StorageLocal {
		dirs = append(dirs, c.Paths.ArtifactsDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "reelforge.db")
}

// LockPath returns the single-producer lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "producer.lock")
}

// DailyLimit returns the configured daily ceiling as an exact decimal.
func (c *Config) DailyLimit() decimal.Decimal {
	return decimal.NewFromFloat(c.Budget.DailyLimit)
}

// MonthlyLimit returns the configured monthly ceiling as an exact decimal.
func (c *Config) MonthlyLimit() decimal.Decimal {
	return decimal.NewFromFloat(c.Budget.MonthlyLimit)
}

// Location resolves the budget time zone used to key ledger days.
func (c *Config) Location() *time.Location {
	tz := strings.TrimSpace(c.Budget.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Local
	}
	return loc
}

// NarrationTimeout returns the per-call narration timeout.
func (c *Config) NarrationTimeout() time.Duration {
	return time.Duration(c.Narration.TimeoutSeconds) * time.Second
}

// SegmentTimeout returns the per-prompt generation timeout.
func (c *Config) SegmentTimeout() time.Duration {
	return time.Duration(c.Segments.TimeoutSeconds) * time.Second
}

// FFmpegBinary returns the ffmpeg executable name.
func (c *Config) FFmpegBinary() string {
	if bin := strings.TrimSpace(c.Assembly.FFmpegBinary); bin != "" {
		return bin
	}
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	if bin := strings.TrimSpace(c.Assembly.FFprobeBinary); bin != "" {
		return bin
	}
	return "ffprobe"
}

// UsesProvider reports whether the narration chain includes provider.
func (c *Config) UsesProvider(provider string) bool {
	return c.Narration.Primary == provider || c.Narration.Fallback == provider
}

// MayBillNarration reports whether narration can cost money on some path.
// A premium fallback counts: it bills whenever the free primary fails, so
// admission has to hold the premium price up front.
func (c *Config) MayBillNarration() bool {
	return c.UsesProvider(ProviderPremium)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
