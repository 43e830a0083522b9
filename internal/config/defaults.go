package config

const (
	defaultConfigPath             = "~/.config/reelforge/config.toml"
	defaultStateDir               = "~/.local/share/reelforge"
	defaultStagingDir             = "~/.local/share/reelforge/staging"
	defaultLogDir                 = "~/.local/share/reelforge/logs"
	defaultArtifactsDir           = "~/.local/share/reelforge/artifacts"
	defaultMusicDir               = "~/.local/share/reelforge/music"
	defaultDailyLimit             = 20.00
	defaultMonthlyLimit           = 500.00
	defaultWarningThreshold       = 0.8
	defaultSegmentConcurrency     = 2
	defaultSegmentDuration        = 5
	defaultAspectRatio            = "9:16"
	defaultSegmentTimeoutSeconds  = 600
	defaultPromptSuffix           = "cinematic lighting, high quality"
	defaultPollIntervalSeconds    = 10
	defaultNarrationTimeout       = 120
	defaultNarrationVoice         = "en-US-GuyNeural"
	defaultNarrationLanguage      = "en"
	defaultEdgeBinary             = "edge-tts"
	defaultPremiumBaseURL         = "https://api.elevenlabs.io/v1/text-to-speech"
	defaultMusicVolume            = 0.15
	defaultAudioBitrate           = "192k"
	defaultBucket                 = "reelforge"
	defaultNotifyRequestTimeout   = 10
	defaultStaleWorkDirHours      = 24
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 30
	defaultScrapePerResult        = 0.0023
	defaultAnalysisPerCall        = 0.002
	defaultStrategyPerCall        = 0.01
	defaultSegmentTestPrice       = 0.25
	defaultSegmentProductionPrice = 0.50
	defaultNarrationPerChar       = 0.0003
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:     defaultStateDir,
			StagingDir:   defaultStagingDir,
			LogDir:       defaultLogDir,
			ArtifactsDir: defaultArtifactsDir,
			MusicDir:     defaultMusicDir,
		},
		Budget: Budget{
			DailyLimit:       defaultDailyLimit,
			MonthlyLimit:     defaultMonthlyLimit,
			WarningThreshold: defaultWarningThreshold,
			AbortOnExceed:    true,
			Timezone:         "local",
		},
		Pricing: Pricing{
			ScrapePerResult:         defaultScrapePerResult,
			AnalysisPerCall:         defaultAnalysisPerCall,
			StrategyPerCall:         defaultStrategyPerCall,
			SegmentTest:             defaultSegmentTestPrice,
			SegmentProduction:       defaultSegmentProductionPrice,
			NarrationPremiumPerChar: defaultNarrationPerChar,
		},
		Segments: Segments{
			Mode:                ModeTest,
			Concurrency:         defaultSegmentConcurrency,
			DurationSeconds:     defaultSegmentDuration,
			AspectRatio:         defaultAspectRatio,
			TimeoutSeconds:      defaultSegmentTimeoutSeconds,
			PromptSuffix:        defaultPromptSuffix,
			MinSuccessful:       1,
			PollIntervalSeconds: defaultPollIntervalSeconds,
		},
		Narration: Narration{
			Primary:        ProviderEdge,
			Voice:          defaultNarrationVoice,
			Language:       defaultNarrationLanguage,
			TimeoutSeconds: defaultNarrationTimeout,
			EdgeBinary:     defaultEdgeBinary,
			PremiumBaseURL: defaultPremiumBaseURL,
		},
		Assembly: Assembly{
			FFmpegBinary:  "ffmpeg",
			FFprobeBinary: "ffprobe",
			MusicVolume:   defaultMusicVolume,
			AudioBitrate:  defaultAudioBitrate,
		},
		Storage: Storage{
			Backend: StorageLocal,
			Bucket:  defaultBucket,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Jobs:           true,
			Budget:         true,
		},
		Workflow: Workflow{
			StaleWorkDirHours: defaultStaleWorkDirHours,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
