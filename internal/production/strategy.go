package production

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"
)

// StrategyStatus is the lifecycle state of a content strategy.
type StrategyStatus string

const (
	StrategyDraft        StrategyStatus = "draft"
	StrategyApproved     StrategyStatus = "approved"
	StrategyInProduction StrategyStatus = "in_production"
	StrategyProduced     StrategyStatus = "produced"
)

// Strategy is an approved script plus the scene prompts to render.
type Strategy struct {
	ID           int64
	Title        string
	Script       string
	ScenePrompts []string
	MusicTrack   string
	// MusicVolume is nil when the strategy leaves the volume to config. An
	// explicit 0 mutes the track.
	MusicVolume *float64
	Status      StrategyStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ScriptChars returns the narration length in characters.
func (s *Strategy) ScriptChars() int64 {
	return int64(utf8.RuneCountInString(strings.TrimSpace(s.Script)))
}

// StrategySource supplies strategies and tracks their production lifecycle.
// GetApprovedStrategy returns an error wrapping services.ErrNotFound when id
// is unknown and services.ErrValidation when it is not approved.
// NextApprovedStrategy returns nil without error when nothing is approved.
type StrategySource interface {
	GetApprovedStrategy(ctx context.Context, id int64) (*Strategy, error)
	NextApprovedStrategy(ctx context.Context) (*Strategy, error)
	MarkInProduction(ctx context.Context, id int64) error
	MarkProduced(ctx context.Context, id int64) error
	RevertToDraft(ctx context.Context, id int64) error
}

// MusicVolumeOr returns the strategy's own music volume, or fallback when it
// has none.
func (s *Strategy) MusicVolumeOr(fallback float64) float64 {
	if s == nil || s.MusicVolume == nil {
		return fallback
	}
	return *s.MusicVolume
}
