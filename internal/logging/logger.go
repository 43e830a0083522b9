package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"reelforge/internal/config"
)

// LogFileName is the name of the persistent log file written under log_dir.
const LogFileName = "reelforge.log"

// Options describes logger construction parameters.
type Options struct {
	Level       string   // debug, info, warn or error
	Format      string   // console (default) or json
	OutputPaths []string // "stdout", "stderr" or file paths
	Development bool     // force caller information
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	level := parseLevel(opts.Level)
	addSource := opts.Development || level <= slog.LevelDebug

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format != "" && format != "console" && format != "json" {
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	out, err := openOutputs(opts.OutputPaths)
	if err != nil {
		return nil, err
	}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
			Level:       level,
			AddSource:   addSource,
			ReplaceAttr: shortJSONKeys,
		})), nil
	}
	return slog.New(newConsoleHandler(out, level, addSource)), nil
}

// NewFromConfig builds the application logger. Records go to stderr, keeping
// stdout free for command output, and are mirrored to log_dir/reelforge.log
// when a log directory is configured.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	opts := Options{Level: "info", OutputPaths: []string{"stderr"}}
	if cfg == nil {
		return New(opts)
	}
	opts.Level = cfg.Logging.Level
	opts.Format = cfg.Logging.Format
	if dir := strings.TrimSpace(cfg.Paths.LogDir); dir != "" {
		opts.OutputPaths = append(opts.OutputPaths, filepath.Join(dir, LogFileName))
	}
	return New(opts)
}

func parseLevel(raw string) slog.Level {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "warning" {
		value = "warn"
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// openOutputs resolves output names into a single writer. Duplicates are
// collapsed and an empty list means stdout.
func openOutputs(paths []string) (io.Writer, error) {
	var (
		names   []string
		writers []io.Writer
	)
	for _, raw := range paths {
		name := strings.TrimSpace(raw)
		if name == "" || slices.Contains(names, name) {
			continue
		}
		names = append(names, name)

		w, err := openOutput(name)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}

	switch len(writers) {
	case 0:
		return os.Stdout, nil
	case 1:
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

func openOutput(name string) (io.Writer, error) {
	switch name {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory for %s: %w", name, err)
	}
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", name, err)
	}
	return f, nil
}

// shortJSONKeys renames slog's default keys to ts/level/msg and trims the
// source down to file:line.
func shortJSONKeys(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.TimeKey:
		a.Key = "ts"
		if a.Value.Kind() == slog.KindTime {
			a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339))
		}
	case slog.LevelKey:
		a.Value = slog.StringValue(strings.ToLower(a.Value.String()))
	case slog.SourceKey:
		if src, ok := a.Value.Any().(*slog.Source); ok && src != nil {
			a.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
		}
	}
	return a
}
