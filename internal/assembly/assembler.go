package assembly

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"reelforge/internal/logging"
	"reelforge/internal/segments"
	"reelforge/internal/services"
)

// ErrBelowMinimum is returned when too few segments succeeded.
var ErrBelowMinimum = errors.New("not enough successful segments")

// Output file names inside a job work directory.
const (
	ConcatFileName = "concatenated.mp4"
	FinalFileName  = "final.mp4"
)

// MediaInfo summarizes a probed file.
type MediaInfo struct {
	Path            string
	DurationSeconds float64
	Width           int
	Height          int
	SizeBytes       int64
	VideoStreams    int
	AudioStreams    int
}

// MixRequest lays narration and optional music under a video.
type MixRequest struct {
	Video       string
	Narration   string
	Music       string
	MusicVolume float64
	Out         string
}

// Backend performs the media operations.
type Backend interface {
	Concatenate(ctx context.Context, assets []string, out string) error
	Mix(ctx context.Context, req MixRequest) error
	Probe(ctx context.Context, path string) (MediaInfo, error)
}

// Input is everything needed to build the final video.
type Input struct {
	Segments      []segments.Result
	Narration     string
	Music         string
	MusicVolume   float64
	MinSuccessful int
	WorkDir       string
}

// Output is the assembled video.
type Output struct {
	Path         string
	Info         MediaInfo
	UsedSegments []segments.Result
}

// Assembler builds final videos.
type Assembler struct {
	Backend Backend
	Logger  *slog.Logger
}

// Assemble concatenates successful segments in prompt order and mixes audio.
func (a *Assembler) Assemble(ctx context.Context, in Input) (Output, error) {
	if a == nil || a.Backend == nil {
		return Output{}, services.Wrap(services.ErrConfiguration, "assembly", "assemble", "no assembly backend configured", nil)
	}
	logger := logging.WithContext(ctx, logging.NewComponentLogger(a.Logger, "assembly"))

	used := make([]segments.Result, 0, len(in.Segments))
	for _, result := range in.Segments {
		if result.Succeeded() && strings.TrimSpace(result.Asset) != "" {
			used = append(used, result)
		}
	}
	minimum := max(in.MinSuccessful, 1)
	if len(used) < minimum {
		return Output{}, services.Wrap(services.ErrValidation, "assembly", "assemble",
			fmt.Sprintf("%d of %d segments succeeded, need %d", len(used), len(in.Segments), minimum), ErrBelowMinimum)
	}
	if strings.TrimSpace(in.Narration) == "" {
		return Output{}, services.Wrap(services.ErrValidation, "assembly", "assemble", "narration track is required", nil)
	}
	if strings.TrimSpace(in.WorkDir) == "" {
		return Output{}, services.Wrap(services.ErrConfiguration, "assembly", "assemble", "work directory is required", nil)
	}

	music := strings.TrimSpace(in.Music)
	if music != "" {
		if _, err := os.Stat(music); err != nil {
			logging.WarnWithContext(logger, "music track unavailable; assembling without music", "music_missing",
				logging.String("music", music),
				logging.Error(err),
				logging.String(logging.FieldImpact, "final video has narration only"),
				logging.String(logging.FieldErrorHint, "check paths.music_dir and the strategy music track"),
			)
			music = ""
		}
	}

	assets := make([]string, len(used))
	for i, result := range used {
		assets[i] = result.Asset
	}
	concatPath := filepath.Join(in.WorkDir, ConcatFileName)
	if err := a.Backend.Concatenate(ctx, assets, concatPath); err != nil {
		return Output{}, services.Wrap(services.ErrExternalTool, "assembly", "concatenate", "join segments", err)
	}

	finalPath := filepath.Join(in.WorkDir, FinalFileName)
	mix := MixRequest{Video: concatPath, Narration: in.Narration, Music: music, MusicVolume: in.MusicVolume, Out: finalPath}
	if err := a.Backend.Mix(ctx, mix); err != nil {
		return Output{}, services.Wrap(services.ErrExternalTool, "assembly", "mix", "mix audio", err)
	}

	info, err := a.Backend.Probe(ctx, finalPath)
	if err != nil {
		return Output{}, services.Wrap(services.ErrExternalTool, "assembly", "probe", "inspect final video", err)
	}
	if info.VideoStreams == 0 {
		return Output{}, services.Wrap(services.ErrValidation, "assembly", "probe", "final video has no video stream", nil)
	}

	logger.Info("video assembled",
		logging.String(logging.FieldEventType, "assembly_complete"),
		logging.Int("segments_used", len(used)),
		logging.Int("segments_total", len(in.Segments)),
		logging.Bool("music", music != ""),
		logging.Float64("duration_seconds", info.DurationSeconds),
		logging.Int64("size_bytes", info.SizeBytes),
	)
	return Output{Path: finalPath, Info: info, UsedSegments: used}, nil
}

// ResolveMusic maps a strategy's music track onto the music directory.
// Absolute tracks are returned unchanged.
func ResolveMusic(musicDir, track string) string {
	track = strings.TrimSpace(track)
	if track == "" {
		return ""
	}
	if filepath.IsAbs(track) || strings.TrimSpace(musicDir) == "" {
		return track
	}
	return filepath.Join(musicDir, track)
}
