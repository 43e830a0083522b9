package narration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"reelforge/internal/media/ffprobe"
	"reelforge/internal/services"
)

// EdgeProviderName identifies the free provider in job records.
const EdgeProviderName = "edge-tts"

// EdgeCLI drives the edge-tts command line tool.
type EdgeCLI struct {
	Binary        string
	FFprobeBinary string
}

// Name implements Synthesizer.
func (e EdgeCLI) Name() string { return EdgeProviderName }

// Synthesize implements Synthesizer. The free provider never costs money.
func (e EdgeCLI) Synthesize(ctx context.Context, text string, voice Voice, outPath string) (Audio, error) {
	binary := strings.TrimSpace(e.Binary)
	if binary == "" {
		binary = "edge-tts"
	}
	if strings.TrimSpace(voice.ID) == "" {
		return Audio{}, services.Wrap(services.ErrValidation, "narration", "edge-tts", "voice is required", nil)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return Audio{}, services.Wrap(services.ErrConfiguration, "narration", "edge-tts", "create output directory", err)
	}

	args := []string{"--voice", voice.ID, "--text", text, "--write-media", outPath}
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Audio{}, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Audio{}, services.Wrap(services.ErrExternalTool, "narration", "edge-tts",
				fmt.Sprintf("exit %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String())), err)
		}
		return Audio{}, services.Wrap(services.ErrExternalTool, "narration", "edge-tts", "run", err)
	}
	if info, err := os.Stat(outPath); err != nil || info.Size() == 0 {
		return Audio{}, services.Wrap(services.ErrExternalTool, "narration", "edge-tts", "no audio written", err)
	}

	duration, err := ProbeDuration(ctx, e.FFprobeBinary, outPath)
	if err != nil {
		return Audio{}, err
	}
	return Audio{
		Path:            outPath,
		DurationSeconds: duration,
		Cost:            decimal.Zero,
		Provider:        EdgeProviderName,
		Characters:      Characters(text),
	}, nil
}

// ProbeDuration reads an audio file's length with ffprobe.
func ProbeDuration(ctx context.Context, binary, path string) (float64, error) {
	if strings.TrimSpace(binary) == "" {
		binary = "ffprobe"
	}
	result, err := ffprobe.Inspect(ctx, binary, path)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "narration", "probe", "read narration duration", err)
	}
	if result.AudioStreamCount() == 0 {
		return 0, services.Wrap(services.ErrValidation, "narration", "probe", "narration has no audio stream", nil)
	}
	return result.DurationSeconds(), nil
}
