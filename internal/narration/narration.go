package narration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"reelforge/internal/logging"
	"reelforge/internal/services"
)

// FileName is the narration track written into a job's work directory.
const FileName = "narration.mp3"

// Voice selects the speaker.
type Voice struct {
	ID       string
	Language string
}

// Audio is a synthesized track.
type Audio struct {
	Path            string
	DurationSeconds float64
	Cost            decimal.Decimal
	Provider        string
	Characters      int64
}

// Premium reports whether the track was billed.
func (a Audio) Premium() bool {
	return a.Cost.IsPositive()
}

// Synthesizer renders text to an audio file at outPath.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text string, voice Voice, outPath string) (Audio, error)
}

// Service tries Primary and then Fallback once.
type Service struct {
	Primary  Synthesizer
	Fallback Synthesizer
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Characters counts billable characters.
func Characters(text string) int64 {
	return int64(utf8.RuneCountInString(text))
}

// Synthesize renders text, falling back to the secondary provider on any
// primary failure.
func (s *Service) Synthesize(ctx context.Context, text string, voice Voice, outPath string) (Audio, error) {
	if s == nil || s.Primary == nil {
		return Audio{}, services.Wrap(services.ErrConfiguration, "narration", "synthesize", "no narration provider configured", nil)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Audio{}, services.Wrap(services.ErrValidation, "narration", "synthesize", "script is empty", nil)
	}
	logger := logging.WithContext(ctx, logging.NewComponentLogger(s.Logger, "narration"))

	audio, primaryErr := s.attempt(ctx, s.Primary, text, voice, outPath)
	if primaryErr == nil {
		return audio, nil
	}
	if ctx.Err() != nil {
		return Audio{}, s.wrap(primaryErr, nil)
	}
	if s.Fallback == nil {
		return Audio{}, s.wrap(primaryErr, nil)
	}

	logging.WarnWithContext(logger, "primary narration provider failed; trying fallback", "narration_fallback",
		logging.String(logging.FieldProvider, s.Primary.Name()),
		logging.String("fallback", s.Fallback.Name()),
		logging.Error(primaryErr),
		logging.String(logging.FieldImpact, "narration provider changed for this job"),
		logging.String(logging.FieldErrorHint, "check provider credentials and quota"),
	)

	audio, fallbackErr := s.attempt(ctx, s.Fallback, text, voice, outPath)
	if fallbackErr == nil {
		return audio, nil
	}
	return Audio{}, s.wrap(primaryErr, fallbackErr)
}

func (s *Service) attempt(ctx context.Context, synth Synthesizer, text string, voice Voice, outPath string) (Audio, error) {
	callCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	audio, err := synth.Synthesize(callCtx, text, voice, outPath)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return Audio{}, fmt.Errorf("%s: %w: %w", synth.Name(), services.ErrTimeout, err)
		}
		return Audio{}, fmt.Errorf("%s: %w", synth.Name(), err)
	}
	if audio.Provider == "" {
		audio.Provider = synth.Name()
	}
	if audio.Path == "" {
		audio.Path = outPath
	}
	if audio.Characters == 0 {
		audio.Characters = Characters(text)
	}
	return audio, nil
}

func (s *Service) wrap(primary, fallback error) error {
	marker := services.ErrExternalTool
	if isTimeout(primary) || isTimeout(fallback) {
		marker = services.ErrTimeout
	}
	if fallback == nil {
		return services.Wrap(marker, "narration", "synthesize", "narration failed", primary)
	}
	return services.Wrap(marker, "narration", "synthesize", "all narration providers failed", errors.Join(primary, fallback))
}

func isTimeout(err error) bool {
	return err != nil && (errors.Is(err, services.ErrTimeout) || errors.Is(err, context.DeadlineExceeded))
}
