package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofrs/flock"

	"reelforge/internal/config"
	"reelforge/internal/logging"
)

var errProducerRunning = errors.New("another reelforge producer is running")

// holdProducerLock takes the single-producer file lock without blocking.
// The returned release func logs rather than fails when unlocking goes wrong.
func holdProducerLock(cfg *config.Config, logger *slog.Logger) (func(), error) {
	path := cfg.LockPath()
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire producer lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w (lock %s)", errProducerRunning, path)
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("producer lock release failed",
				logging.String("lock", path),
				logging.Error(err),
			)
		}
	}, nil
}
