package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeBudget()
	c.normalizeSegments()
	c.normalizeNarration()
	c.normalizeStorage()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		name  string
		value *string
		def   string
	}{
		{"paths.state_dir", &c.Paths.StateDir, defaultStateDir},
		{"paths.staging_dir", &c.Paths.StagingDir, defaultStagingDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
		{"paths.artifacts_dir", &c.Paths.ArtifactsDir, defaultArtifactsDir},
		{"paths.music_dir", &c.Paths.MusicDir, defaultMusicDir},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.def
		}
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.value = expanded
	}
	return nil
}

func (c *Config) normalizeBudget() {
	c.Budget.Timezone = strings.TrimSpace(c.Budget.Timezone)
	if c.Budget.Timezone == "" {
		c.Budget.Timezone = "local"
	}
}

func (c *Config) normalizeSegments() {
	c.Segments.Mode = strings.ToLower(strings.TrimSpace(c.Segments.Mode))
	if c.Segments.Mode == "" {
		c.Segments.Mode = ModeTest
	}
	c.Segments.AspectRatio = strings.TrimSpace(c.Segments.AspectRatio)
	if c.Segments.AspectRatio == "" {
		c.Segments.AspectRatio = defaultAspectRatio
	}
	c.Segments.PromptSuffix = strings.TrimSpace(c.Segments.PromptSuffix)
	c.Segments.BaseURL = strings.TrimSpace(c.Segments.BaseURL)
	c.Segments.APIKey = strings.TrimSpace(c.Segments.APIKey)
	if c.Segments.APIKey == "" {
		if value, ok := os.LookupEnv("REELFORGE_VIDEOGEN_API_KEY"); ok {
			c.Segments.APIKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeNarration() {
	c.Narration.Primary = strings.ToLower(strings.TrimSpace(c.Narration.Primary))
	if c.Narration.Primary == "" {
		c.Narration.Primary = ProviderEdge
	}
	c.Narration.Fallback = strings.ToLower(strings.TrimSpace(c.Narration.Fallback))
	c.Narration.Voice = strings.TrimSpace(c.Narration.Voice)
	if c.Narration.Voice == "" {
		c.Narration.Voice = defaultNarrationVoice
	}
	c.Narration.EdgeBinary = strings.TrimSpace(c.Narration.EdgeBinary)
	if c.Narration.EdgeBinary == "" {
		c.Narration.EdgeBinary = defaultEdgeBinary
	}
	c.Narration.PremiumBaseURL = strings.TrimSpace(c.Narration.PremiumBaseURL)
	if c.Narration.PremiumBaseURL == "" {
		c.Narration.PremiumBaseURL = defaultPremiumBaseURL
	}
	c.Narration.PremiumAPIKey = strings.TrimSpace(c.Narration.PremiumAPIKey)
	if c.Narration.PremiumAPIKey == "" {
		if value, ok := os.LookupEnv("REELFORGE_PREMIUM_TTS_API_KEY"); ok {
			c.Narration.PremiumAPIKey = strings.TrimSpace(value)
		}
	}
	c.Narration.PremiumVoiceID = strings.TrimSpace(c.Narration.PremiumVoiceID)
}

func (c *Config) normalizeStorage() {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageLocal
	}
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	if c.Storage.Bucket == "" {
		c.Storage.Bucket = defaultBucket
	}
	if c.Storage.AccessKey == "" {
		if value, ok := os.LookupEnv("MINIO_ACCESS_KEY"); ok {
			c.Storage.AccessKey = strings.TrimSpace(value)
		}
	}
	if c.Storage.SecretKey == "" {
		if value, ok := os.LookupEnv("MINIO_SECRET_KEY"); ok {
			c.Storage.SecretKey = strings.TrimSpace(value)
		}
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
