package assembly

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"reelforge/internal/config"
	"reelforge/internal/media/ffprobe"
)

const (
	defaultAudioBitrate = "192k"
	concatListName      = "concat_list.txt"
)

type commandRunner func(ctx context.Context, name string, args ...string) error

// FFmpeg is the ffmpeg/ffprobe backed Backend.
type FFmpeg struct {
	Binary        string
	FFprobeBinary string
	AudioBitrate  string

	run commandRunner
}

// NewFFmpeg builds the backend from the assembly section.
func NewFFmpeg(cfg *config.Config) *FFmpeg {
	f := &FFmpeg{Binary: "ffmpeg", FFprobeBinary: "ffprobe", AudioBitrate: defaultAudioBitrate}
	if cfg != nil {
		f.Binary = cfg.FFmpegBinary()
		f.FFprobeBinary = cfg.FFprobeBinary()
		if strings.TrimSpace(cfg.Assembly.AudioBitrate) != "" {
			f.AudioBitrate = cfg.Assembly.AudioBitrate
		}
	}
	return f
}

// WithCommandRunner allows injecting a custom command runner for tests.
func (f *FFmpeg) WithCommandRunner(r commandRunner) {
	if f != nil && r != nil {
		f.run = r
	}
}

// Concatenate joins assets with the concat demuxer, copying streams.
func (f *FFmpeg) Concatenate(ctx context.Context, assets []string, out string) error {
	if len(assets) == 0 {
		return fmt.Errorf("no segments to concatenate")
	}
	listPath := filepath.Join(filepath.Dir(out), concatListName)
	if err := os.WriteFile(listPath, []byte(ConcatList(assets)), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-f", "concat", "-safe", "0", "-i", listPath, "-c", "copy", out}
	return f.runner()(ctx, f.binary(), args...)
}

// Mix muxes narration, and music when present, under the video stream.
func (f *FFmpeg) Mix(ctx context.Context, req MixRequest) error {
	return f.runner()(ctx, f.binary(), MixArgs(req, f.bitrate())...)
}

// Probe inspects path with ffprobe.
func (f *FFmpeg) Probe(ctx context.Context, path string) (MediaInfo, error) {
	binary := strings.TrimSpace(f.FFprobeBinary)
	if binary == "" {
		binary = "ffprobe"
	}
	result, err := ffprobe.Inspect(ctx, binary, path)
	if err != nil {
		return MediaInfo{}, err
	}
	width, height := result.Dimensions()
	size := result.SizeBytes()
	if size == 0 {
		if info, statErr := os.Stat(path); statErr == nil {
			size = info.Size()
		}
	}
	return MediaInfo{
		Path:            path,
		DurationSeconds: result.DurationSeconds(),
		Width:           width,
		Height:          height,
		SizeBytes:       size,
		VideoStreams:    result.VideoStreamCount(),
		AudioStreams:    result.AudioStreamCount(),
	}, nil
}

// ConcatList renders the concat demuxer input file.
func ConcatList(assets []string) string {
	var b strings.Builder
	for _, asset := range assets {
		if abs, err := filepath.Abs(asset); err == nil {
			asset = abs
		}
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(asset, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

// MixArgs builds the ffmpeg argument list for a mix.
func MixArgs(req MixRequest, bitrate string) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", req.Video, "-i", req.Narration}
	if strings.TrimSpace(req.Music) == "" {
		args = append(args, "-map", "0:v", "-map", "1:a")
	} else {
		args = append(args, "-i", req.Music, "-filter_complex", MusicFilter(req.MusicVolume), "-map", "0:v", "-map", "[aout]")
	}
	return append(args, "-c:v", "copy", "-c:a", "aac", "-b:a", bitrate, "-shortest", req.Out)
}

// MusicFilter loops the music bed under the narration at volume.
func MusicFilter(volume float64) string {
	return "[1:a]volume=1.0[narr];" +
		"[2:a]volume=" + strconv.FormatFloat(volume, 'f', -1, 64) + ",aloop=loop=-1:size=2e9[music];" +
		"[narr][music]amix=inputs=2:duration=first[aout]"
}

func (f *FFmpeg) binary() string {
	if strings.TrimSpace(f.Binary) == "" {
		return "ffmpeg"
	}
	return f.Binary
}

func (f *FFmpeg) bitrate() string {
	if strings.TrimSpace(f.AudioBitrate) == "" {
		return defaultAudioBitrate
	}
	return f.AudioBitrate
}

func (f *FFmpeg) runner() commandRunner {
	if f.run != nil {
		return f.run
	}
	return runFFmpeg
}

func runFFmpeg(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
