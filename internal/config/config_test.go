package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"

	"reelforge/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantStaging := filepath.Join(tempHome, ".local", "share", "reelforge", "staging")
	if cfg.Paths.StagingDir != wantStaging {
		t.Fatalf("unexpected staging dir: got %q want %q", cfg.Paths.StagingDir, wantStaging)
	}
	if !cfg.DailyLimit().Equal(decimal.NewFromInt(20)) {
		t.Fatalf("unexpected daily limit %s", cfg.DailyLimit())
	}
	if cfg.Segments.Mode != config.ModeTest {
		t.Fatalf("expected test mode by default, got %q", cfg.Segments.Mode)
	}
	if cfg.Narration.Primary != config.ProviderEdge {
		t.Fatalf("expected edge narration by default, got %q", cfg.Narration.Primary)
	}
	if cfg.Storage.Backend != config.StorageLocal {
		t.Fatalf("expected local storage by default, got %q", cfg.Storage.Backend)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.StagingDir, cfg.Paths.LogDir, cfg.Paths.ArtifactsDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
	if !strings.HasPrefix(cfg.DatabasePath(), cfg.Paths.StateDir) {
		t.Fatalf("database path %q outside state dir", cfg.DatabasePath())
	}
}

func TestLoadCustomPath(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "reelforge.toml")

	type payload struct {
		Budget struct {
			DailyLimit    float64 `toml:"daily_limit"`
			AbortOnExceed bool    `toml:"abort_on_exceed"`
		} `toml:"budget"`
		Segments struct {
			Mode        string `toml:"mode"`
			Concurrency int    `toml:"concurrency"`
		} `toml:"segments"`
	}
	custom := payload{}
	custom.Budget.DailyLimit = 1.5
	custom.Budget.AbortOnExceed = false
	custom.Segments.Mode = " Production "
	custom.Segments.Concurrency = 4
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if !cfg.DailyLimit().Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("expected daily limit 1.5, got %s", cfg.DailyLimit())
	}
	if cfg.Budget.AbortOnExceed {
		t.Fatal("expected abort_on_exceed override")
	}
	if cfg.Segments.Mode != config.ModeProduction {
		t.Fatalf("expected normalized production mode, got %q", cfg.Segments.Mode)
	}
	if cfg.Segments.Concurrency != 4 {
		t.Fatalf("expected concurrency 4, got %d", cfg.Segments.Concurrency)
	}
}

func TestEnvFallbacksForCredentials(t *testing.T) {
	t.Setenv("REELFORGE_VIDEOGEN_API_KEY", "env-video")
	t.Setenv("REELFORGE_PREMIUM_TTS_API_KEY", "env-tts")
	t.Setenv("MINIO_ACCESS_KEY", "env-access")
	t.Setenv("MINIO_SECRET_KEY", "env-secret")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Segments.APIKey != "env-video" {
		t.Fatalf("unexpected videogen key %q", cfg.Segments.APIKey)
	}
	if cfg.Narration.PremiumAPIKey != "env-tts" {
		t.Fatalf("unexpected tts key %q", cfg.Narration.PremiumAPIKey)
	}
	if cfg.Storage.AccessKey != "env-access" || cfg.Storage.SecretKey != "env-secret" {
		t.Fatalf("unexpected storage keys %q/%q", cfg.Storage.AccessKey, cfg.Storage.SecretKey)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"negative limit", func(c *config.Config) { c.Budget.DailyLimit = -1 }, "budget.daily_limit"},
		{"warning threshold", func(c *config.Config) { c.Budget.WarningThreshold = 1.5 }, "warning_threshold"},
		{"unknown mode", func(c *config.Config) { c.Segments.Mode = "ultra" }, "segments.mode"},
		{"zero concurrency", func(c *config.Config) { c.Segments.Concurrency = 0 }, "segments.concurrency"},
		{"min successful", func(c *config.Config) { c.Segments.MinSuccessful = 0 }, "segments.min_successful"},
		{"aspect ratio", func(c *config.Config) { c.Segments.AspectRatio = "4:3" }, "aspect_ratio"},
		{"unknown provider", func(c *config.Config) { c.Narration.Primary = "robot" }, "narration.primary"},
		{"same fallback", func(c *config.Config) { c.Narration.Fallback = config.ProviderEdge }, "narration.fallback"},
		{"premium voice", func(c *config.Config) { c.Narration.Fallback = config.ProviderPremium }, "premium_voice_id"},
		{"music volume", func(c *config.Config) { c.Assembly.MusicVolume = 2 }, "music_volume"},
		{"minio endpoint", func(c *config.Config) { c.Storage.Backend = config.StorageMinIO }, "storage.endpoint"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in %q", tc.want, err.Error())
			}
		})
	}
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(target)
	if err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Segments.PromptSuffix == "" {
		t.Fatal("expected prompt suffix from sample")
	}
}

func TestParseAspectRatio(t *testing.T) {
	w, h, ok := config.ParseAspectRatio("9:16")
	if !ok || w != 1080 || h != 1920 {
		t.Fatalf("unexpected 9:16 mapping %dx%d ok=%v", w, h, ok)
	}
	if _, _, ok := config.ParseAspectRatio("21:9"); ok {
		t.Fatal("expected unsupported ratio")
	}
}

func TestMayBillNarration(t *testing.T) {
	tests := []struct {
		name              string
		primary, fallback string
		want              bool
	}{
		{"edge only", config.ProviderEdge, "", false},
		{"premium primary", config.ProviderPremium, config.ProviderEdge, true},
		{"premium fallback", config.ProviderEdge, config.ProviderPremium, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Narration.Primary = tt.primary
			cfg.Narration.Fallback = tt.fallback
			if got := cfg.MayBillNarration(); got != tt.want {
				t.Fatalf("MayBillNarration() = %v, want %v", got, tt.want)
			}
		})
	}
}
