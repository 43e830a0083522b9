package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"reelforge/internal/artifacts"
	"reelforge/internal/budget"
	"reelforge/internal/preflight"
	"reelforge/internal/production"
	"reelforge/internal/staging"
)

type produceFlags struct {
	next          bool
	mode          string
	minSegments   int
	concurrency   int
	duration      int
	aspect        string
	voice         string
	skipPreflight bool
}

func newProduceCommand(ctx *commandContext) *cobra.Command {
	var flags produceFlags

	cmd := &cobra.Command{
		Use:   "produce [strategy-id]",
		Short: "Produce a video from an approved strategy",
		Long: `Produce a video from an approved strategy.

The estimate for the whole job is reserved against today's budget before any
provider is called; a job that does not fit is refused without side effects.
Pass a strategy ID, or --next to take the oldest approved strategy. Only one
producer runs at a time per state directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var strategyID int64
			switch {
			case len(args) == 1 && flags.next:
				return errors.New("pass a strategy id or --next, not both")
			case len(args) == 1:
				id, err := parseStrategyID(args[0])
				if err != nil {
					return err
				}
				strategyID = id
			case !flags.next:
				return errors.New("pass a strategy id or --next")
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.ensureLogger()

			release, err := holdProducerLock(cfg, logger)
			if err != nil {
				return err
			}
			defer release()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			maxAge := time.Duration(cfg.Workflow.StaleWorkDirHours) * time.Hour
			if maxAge > 0 {
				staging.CleanStale(runCtx, cfg.Paths.StagingDir, maxAge, logger)
			}

			return ctx.withApp(func(a *app) error {
				if !flags.skipPreflight {
					if err := runProducePreflight(runCtx, cmd, a); err != nil {
						return err
					}
				}

				runner, err := a.newRunner()
				if err != nil {
					return err
				}
				opts, err := flags.options()
				if err != nil {
					return err
				}

				var job *production.Job
				if flags.next {
					job, err = runner.ProduceNext(runCtx, opts)
				} else {
					job, err = runner.Produce(runCtx, strategyID, opts)
				}
				return reportProduction(cmd, ctx, job, err)
			})
		},
	}

	cmd.Flags().BoolVar(&flags.next, "next", false, "Produce the oldest approved strategy")
	cmd.Flags().StringVar(&flags.mode, "mode", "", "Segment quality mode (test or production)")
	cmd.Flags().IntVar(&flags.minSegments, "min-segments", 0, "Minimum successful segments required to assemble")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "Concurrent segment generations")
	cmd.Flags().IntVar(&flags.duration, "duration", 0, "Seconds per segment")
	cmd.Flags().StringVar(&flags.aspect, "aspect", "", "Aspect ratio (9:16, 16:9 or 1:1)")
	cmd.Flags().StringVar(&flags.voice, "voice", "", "Narration voice")
	cmd.Flags().BoolVar(&flags.skipPreflight, "skip-preflight", false, "Skip binary, directory and storage checks")
	return cmd
}

func (f produceFlags) options() (production.ProduceOptions, error) {
	opts := production.ProduceOptions{
		MinSuccessful:   f.minSegments,
		Concurrency:     f.concurrency,
		SegmentDuration: f.duration,
		AspectRatio:     strings.TrimSpace(f.aspect),
	}
	opts.Voice.ID = strings.TrimSpace(f.voice)
	if strings.TrimSpace(f.mode) != "" {
		mode, err := parseMode(f.mode, "")
		if err != nil {
			return opts, err
		}
		opts.Mode = mode
	}
	if f.minSegments < 0 {
		return opts, errors.New("--min-segments must not be negative")
	}
	return opts, nil
}

func runProducePreflight(ctx context.Context, cmd *cobra.Command, a *app) error {
	store, err := artifacts.New(a.cfg)
	if err != nil {
		return err
	}
	failed := preflight.Failed(preflight.RunAll(ctx, a.cfg, store))
	if len(failed) == 0 {
		return nil
	}
	out := cmd.ErrOrStderr()
	fmt.Fprintln(out, "Preflight failed:")
	names := make([]string, 0, len(failed))
	for _, r := range failed {
		checkLine(out, r.Name, checkFail, r.Detail)
		names = append(names, r.Name)
	}
	return fmt.Errorf("preflight failed: %s", strings.Join(names, ", "))
}

func reportProduction(cmd *cobra.Command, ctx *commandContext, job *production.Job, err error) error {
	out := cmd.OutOrStdout()
	switch {
	case errors.Is(err, production.ErrNoApprovedStrategy):
		if ctx.JSONMode() {
			return writeJSON(cmd, map[string]any{"produced": false, "reason": "no approved strategy"})
		}
		fmt.Fprintln(out, "No approved strategy is waiting")
		return nil
	case errors.Is(err, budget.ErrAdmissionDenied):
		if ctx.JSONMode() {
			if werr := writeJSON(cmd, map[string]any{"produced": false, "reason": err.Error()}); werr != nil {
				return werr
			}
		}
		return err
	}
	if job == nil {
		return err
	}
	if ctx.JSONMode() {
		if werr := writeJSON(cmd, jobJSON(job)); werr != nil {
			return werr
		}
		return err
	}
	printJob(out, job)
	return err
}
