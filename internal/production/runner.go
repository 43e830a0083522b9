package production

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"reelforge/internal/artifacts"
	"reelforge/internal/assembly"
	"reelforge/internal/budget"
	"reelforge/internal/logging"
	"reelforge/internal/narration"
	"reelforge/internal/pricing"
	"reelforge/internal/segments"
	"reelforge/internal/services"
	"reelforge/internal/staging"
)

// ErrNoApprovedStrategy is returned by ProduceNext when nothing is approved.
var ErrNoApprovedStrategy = errors.New("no approved strategy")

// Narrator renders the voice-over. *narration.Service satisfies it.
type Narrator interface {
	Synthesize(ctx context.Context, text string, voice narration.Voice, outPath string) (narration.Audio, error)
}

// SegmentGenerator renders scene clips. *segments.Generator satisfies it.
type SegmentGenerator interface {
	Generate(ctx context.Context, req segments.Request) segments.Batch
}

// Assembler builds the final video. *assembly.Assembler satisfies it.
type Assembler interface {
	Assemble(ctx context.Context, in assembly.Input) (assembly.Output, error)
}

// Notifier receives job outcomes.
type Notifier interface {
	NotifyJobCompleted(ctx context.Context, jobID, title string, cost decimal.Decimal, remoteRef string) error
	NotifyJobFailed(ctx context.Context, jobID, title, reason string) error
}

// Deps wires a Runner.
type Deps struct {
	Ledger     *budget.Ledger
	Counters   *budget.Counters
	Jobs       JobStore
	Strategies StrategySource
	Narrator   Narrator
	Segments   SegmentGenerator
	Assembler  Assembler
	Artifacts  artifacts.Store
	Notifier   Notifier

	StagingDir string
	MusicDir   string
	// MusicVolume applies when a strategy leaves its volume unset.
	MusicVolume float64
	// PremiumNarration prices the narration into the admission estimate.
	PremiumNarration bool
	Defaults         ProduceOptions

	Logger *slog.Logger
	Clock  func() time.Time
	NewID  func() string
}

// Runner executes production jobs.
type Runner struct {
	deps   Deps
	logger *slog.Logger
}

// NewRunner validates deps and fills clock and id defaults.
func NewRunner(deps Deps) (*Runner, error) {
	switch {
	case deps.Ledger == nil:
		return nil, errors.New("production runner: budget ledger is required")
	case deps.Jobs == nil:
		return nil, errors.New("production runner: job store is required")
	case deps.Strategies == nil:
		return nil, errors.New("production runner: strategy source is required")
	case deps.Narrator == nil, deps.Segments == nil, deps.Assembler == nil:
		return nil, errors.New("production runner: narration, segments and assembly are required")
	case deps.Artifacts == nil:
		return nil, errors.New("production runner: artifact store is required")
	case strings.TrimSpace(deps.StagingDir) == "":
		return nil, errors.New("production runner: staging directory is required")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	return &Runner{deps: deps, logger: logging.NewComponentLogger(deps.Logger, "production")}, nil
}

// Estimate prices a strategy under opts without reserving anything.
func (r *Runner) Estimate(strategy *Strategy, opts ProduceOptions) (pricing.Estimate, error) {
	opts = opts.merge(r.deps.Defaults)
	return r.deps.Ledger.Catalog().EstimateProduction(
		strategy.ScriptChars(), int64(len(strategy.ScenePrompts)), opts.Mode, r.deps.PremiumNarration)
}

// ProduceNext produces the oldest approved strategy.
func (r *Runner) ProduceNext(ctx context.Context, opts ProduceOptions) (*Job, error) {
	strategy, err := r.deps.Strategies.NextApprovedStrategy(ctx)
	if err != nil {
		return nil, fmt.Errorf("select next strategy: %w", err)
	}
	if strategy == nil {
		return nil, ErrNoApprovedStrategy
	}
	return r.produce(ctx, strategy, opts)
}

// Produce runs the approved strategy strategyID to completion. A denied
// admission returns an error matching budget.ErrAdmissionDenied and leaves
// no trace. Otherwise the returned job reflects the terminal state, and the
// error is non-nil when that state is failed.
func (r *Runner) Produce(ctx context.Context, strategyID int64, opts ProduceOptions) (*Job, error) {
	strategy, err := r.deps.Strategies.GetApprovedStrategy(ctx, strategyID)
	if err != nil {
		return nil, err
	}
	return r.produce(ctx, strategy, opts)
}

func (r *Runner) produce(ctx context.Context, strategy *Strategy, opts ProduceOptions) (*Job, error) {
	opts = opts.merge(r.deps.Defaults)
	if !opts.Mode.Valid() {
		return nil, services.Wrap(services.ErrConfiguration, "production", "options", fmt.Sprintf("unknown mode %q", opts.Mode), nil)
	}
	if len(strategy.ScenePrompts) == 0 {
		return nil, services.Wrap(services.ErrValidation, "production", "admission", "strategy has no scene prompts", nil)
	}
	ctx = services.WithStrategyID(ctx, strategy.ID)
	logger := logging.WithContext(ctx, r.logger)

	estimate, err := r.Estimate(strategy, opts)
	if err != nil {
		return nil, err
	}
	reservation, decision, err := r.deps.Ledger.Reserve(ctx, estimate.Total, fmt.Sprintf("strategy %d", strategy.ID))
	if err != nil {
		return nil, err
	}
	// Release uses a detached context so cancellation never strands a hold.
	defer func() {
		if err := r.deps.Ledger.Release(context.WithoutCancel(ctx), reservation); err != nil {
			logging.ErrorWithContext(logger, "failed to release budget reservation", "reservation_release_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "reserved amount stays held until the next day"),
			)
		}
	}()

	job := NewJob(r.deps.NewID(), strategy.ID, opts.Mode, r.deps.Clock())
	job.MinSuccessful = opts.MinSuccessful
	job.EstimatedCost = estimate.Total
	job.MusicTrack = strategy.MusicTrack
	job.MusicVolume = strategy.MusicVolumeOr(r.deps.MusicVolume)
	if err := r.deps.Jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	ctx = services.WithJobID(ctx, job.ID)
	logger = logging.WithContext(ctx, r.logger)
	logger.Info("production started",
		logging.String(logging.FieldEventType, "production_start"),
		logging.String("title", strategy.Title),
		logging.String("mode", string(opts.Mode)),
		logging.Int("prompts", len(strategy.ScenePrompts)),
		logging.Money("estimate", estimate.Total),
		logging.Bool("near_limit", decision.NearLimit),
	)

	if err := r.deps.Strategies.MarkInProduction(ctx, strategy.ID); err != nil {
		return job, r.fail(ctx, job, strategy, fmt.Errorf("mark strategy in production: %w", err))
	}

	work, err := staging.NewWorkDir(r.deps.StagingDir, job.ID)
	if err != nil {
		return job, r.fail(ctx, job, strategy, services.Wrap(services.ErrConfiguration, "production", "work dir", "create work directory", err))
	}
	defer func() {
		if err := work.Cleanup(); err != nil {
			logger.Warn("failed to remove work directory",
				logging.String("path", work.Path()),
				logging.Error(err),
				logging.String(logging.FieldEventType, "work_dir_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "reelforge removes stale work directories on the next run"),
			)
		}
	}()

	run := &jobRun{runner: r, job: job, strategy: strategy, opts: opts, reservation: reservation, work: work, logger: logger}
	if err := run.execute(ctx); err != nil {
		return job, r.fail(ctx, job, strategy, err)
	}
	return job, nil
}

// jobRun carries the per-job state through the stages.
type jobRun struct {
	runner      *Runner
	job         *Job
	strategy    *Strategy
	opts        ProduceOptions
	reservation *budget.Reservation
	work        staging.WorkDir
	logger      *slog.Logger

	audio narration.Audio
	batch segments.Batch
	final assembly.Output
}

func (j *jobRun) execute(ctx context.Context) error {
	stages := []struct {
		status Status
		run    func(context.Context) error
	}{
		{StatusGeneratingNarration, j.narrate},
		{StatusGeneratingSegments, j.renderSegments},
		{StatusAssembling, j.assemble},
	}
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := j.runner.advance(ctx, j.job, st.status, StageLabel(st.status)+" started"); err != nil {
			return err
		}
		stageCtx := logging.WithStage(ctx, string(st.status))
		started := time.Now()
		j.logger.Info("stage started",
			logging.String(logging.FieldEventType, "stage_start"),
			logging.String(logging.FieldStage, string(st.status)),
		)
		if err := st.run(stageCtx); err != nil {
			return err
		}
		j.logger.Info("stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.String(logging.FieldStage, string(st.status)),
			logging.Duration("elapsed", time.Since(started).Round(time.Millisecond)),
		)
	}
	return j.finalize(ctx)
}

func (j *jobRun) narrate(ctx context.Context) error {
	audio, err := j.runner.deps.Narrator.Synthesize(ctx, j.strategy.Script, j.opts.Voice, j.work.File(narration.FileName))
	if err != nil {
		return err
	}
	j.audio = audio
	j.job.NarrationAsset = audio.Path
	j.job.NarrationProvider = audio.Provider
	j.job.NarrationDuration = audio.DurationSeconds

	callCounter := budget.CounterNarrationFreeCalls
	if audio.Premium() {
		callCounter = budget.CounterNarrationPremiumCalls
	}
	_, chargeErr := j.runner.deps.Ledger.RegisterCost(ctx, budget.Charge{
		Category:    pricing.CategoryNarrationPremium,
		Amount:      audio.Cost,
		Quantity:    audio.Characters,
		Reservation: j.reservation,
		Counters: []budget.CounterDelta{
			{Name: budget.CounterNarrationCharsUsed, Amount: audio.Characters},
			{Name: callCounter, Amount: 1},
		},
	})
	if chargeErr == nil || errors.Is(chargeErr, budget.ErrBudgetExceeded) {
		j.job.CostNarration = audio.Cost
	}
	if err := j.runner.deps.Jobs.SaveJob(ctx, j.job); err != nil {
		return fmt.Errorf("save narration result: %w", err)
	}
	if chargeErr != nil {
		return fmt.Errorf("register narration cost: %w", chargeErr)
	}
	return nil
}

func (j *jobRun) renderSegments(ctx context.Context) error {
	var (
		charged   = decimal.Zero
		exceeded  error
		chargeErr error
	)
	onResult := func(res segments.Result) {
		if !res.Succeeded() {
			return
		}
		_, err := j.runner.deps.Ledger.RegisterCost(ctx, budget.Charge{
			Category:    pricing.CategorySegmentGen,
			Amount:      res.Cost,
			Quantity:    1,
			Reservation: j.reservation,
			Counters:    []budget.CounterDelta{{Name: budget.CounterSegmentsGenerated, Amount: 1}},
		})
		switch {
		case err == nil:
			charged = charged.Add(res.Cost)
		case errors.Is(err, budget.ErrBudgetExceeded):
			charged = charged.Add(res.Cost)
			if exceeded == nil {
				exceeded = err
			}
		default:
			if chargeErr == nil {
				chargeErr = fmt.Errorf("register segment %d cost: %w", res.Index, err)
			}
		}
	}

	j.batch = j.runner.deps.Segments.Generate(ctx, segments.Request{
		Prompts:         j.strategy.ScenePrompts,
		DurationSeconds: j.opts.SegmentDuration,
		AspectRatio:     j.opts.AspectRatio,
		Mode:            j.opts.Mode,
		OutputDir:       j.work.Path(),
		Concurrency:     j.opts.Concurrency,
		OnResult:        onResult,
		// Once the ledger refuses further spend, no new paid calls go out.
		Stop: func() error { return exceeded },
	})

	records := make([]SegmentRecord, len(j.batch.Results))
	for i, res := range j.batch.Results {
		records[i] = SegmentRecord{
			Index:  res.Index,
			Prompt: res.Prompt,
			Asset:  res.Asset,
			Failed: !res.Succeeded(),
			Reason: res.Reason(),
			Cost:   res.Cost,
		}
	}
	j.job.Segments = records
	j.job.CostSegments = charged
	if err := j.runner.deps.Jobs.SaveSegments(ctx, j.job.ID, records); err != nil {
		return fmt.Errorf("save segments: %w", err)
	}
	if err := j.runner.deps.Jobs.SaveJob(ctx, j.job); err != nil {
		return fmt.Errorf("save segment costs: %w", err)
	}

	succeeded := len(j.batch.Successful())
	j.logger.Info("segments collected",
		logging.String(logging.FieldEventType, "segments_collected"),
		logging.Int("succeeded", succeeded),
		logging.Int("total", len(records)),
		logging.Money(logging.FieldCost, charged),
	)
	switch {
	case succeeded == 0:
		return services.Wrap(services.ErrExternalTool, "production", "segments",
			fmt.Sprintf("all %d segments failed", len(records)), nil)
	case exceeded != nil:
		return exceeded
	case chargeErr != nil:
		return chargeErr
	}
	return nil
}

func (j *jobRun) assemble(ctx context.Context) error {
	out, err := j.runner.deps.Assembler.Assemble(ctx, assembly.Input{
		Segments:      j.batch.Results,
		Narration:     j.audio.Path,
		Music:         assembly.ResolveMusic(j.runner.deps.MusicDir, j.strategy.MusicTrack),
		MusicVolume:   j.job.MusicVolume,
		MinSuccessful: j.opts.MinSuccessful,
		WorkDir:       j.work.Path(),
	})
	if err != nil {
		return err
	}
	j.final = out
	j.job.AssembledAsset = out.Path
	j.job.FinalDuration = out.Info.DurationSeconds
	j.job.FinalWidth = out.Info.Width
	j.job.FinalHeight = out.Info.Height
	j.job.FinalSizeBytes = out.Info.SizeBytes
	if err := j.runner.deps.Jobs.SaveJob(ctx, j.job); err != nil {
		return fmt.Errorf("save assembly result: %w", err)
	}
	return nil
}

func (j *jobRun) finalize(ctx context.Context) error {
	key := artifacts.UploadKey(j.job.ID)
	ref, err := j.runner.deps.Artifacts.Upload(ctx, j.final.Path, key)
	if err != nil {
		return err
	}
	j.job.FinalAsset = key
	j.job.RemoteRef = ref
	j.job.FinalizeCosts()

	if j.runner.deps.Counters != nil {
		if err := j.runner.deps.Counters.Increment(ctx, budget.CounterVideosProduced, 1); err != nil {
			j.logger.Warn("failed to count produced video",
				logging.Error(err),
				logging.String(logging.FieldEventType, "counter_failed"),
				logging.String(logging.FieldImpact, "daily counters under-report produced videos"),
			)
		}
	}
	if err := j.runner.deps.Strategies.MarkProduced(ctx, j.strategy.ID); err != nil {
		return fmt.Errorf("mark strategy produced: %w", err)
	}
	if err := j.runner.advance(ctx, j.job, StatusCompleted, "uploaded to "+ref); err != nil {
		return err
	}

	j.logger.Info("production completed",
		logging.String(logging.FieldEventType, "production_complete"),
		logging.String("remote_ref", ref),
		logging.Money("cost_total", j.job.CostTotal),
		logging.Int("segments_used", len(j.final.UsedSegments)),
		logging.Float64("duration_seconds", j.job.FinalDuration),
	)
	if n := j.runner.deps.Notifier; n != nil {
		if err := n.NotifyJobCompleted(ctx, j.job.ID, j.strategy.Title, j.job.CostTotal, ref); err != nil {
			j.logger.Debug("completion notification failed", logging.Error(err))
		}
	}
	return nil
}

// advance applies a transition and persists it with its event.
func (r *Runner) advance(ctx context.Context, job *Job, to Status, message string) error {
	ev, err := job.transition(to, message, r.deps.Clock())
	if err != nil {
		return err
	}
	if err := r.deps.Jobs.RecordTransition(ctx, job, ev); err != nil {
		return fmt.Errorf("persist transition to %s: %w", to, err)
	}
	return nil
}

// fail moves job to failed and reverts the strategy. Persistence runs on a
// detached context so a cancelled run still records its outcome.
func (r *Runner) fail(ctx context.Context, job *Job, strategy *Strategy, cause error) error {
	persistCtx := context.WithoutCancel(ctx)
	logger := logging.WithContext(ctx, r.logger)

	message := strings.TrimSpace(services.Details(cause).Message)
	if message == "" {
		message = "production failed"
	}
	job.ErrorMessage = message
	job.FinalizeCosts()

	if !job.Status.Terminal() {
		if err := r.advance(persistCtx, job, StatusFailed, message); err != nil {
			logger.Error("failed to persist job failure", logging.Error(err))
		}
	} else if err := r.deps.Jobs.SaveJob(persistCtx, job); err != nil {
		logger.Error("failed to persist job failure", logging.Error(err))
	}
	if err := r.deps.Strategies.RevertToDraft(persistCtx, strategy.ID); err != nil {
		logger.Warn("failed to revert strategy to draft",
			logging.Error(err),
			logging.String(logging.FieldEventType, "strategy_revert_failed"),
			logging.String(logging.FieldErrorHint, "approve the strategy again with reelforge strategy approve"),
		)
	}

	logging.ErrorWithContext(logger, "production failed", "production_failure",
		logging.String("error_kind", services.Details(cause).Kind),
		logging.String("failure", string(services.FailureStatus(cause))),
		logging.Money("cost_total", job.CostTotal),
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, "inspect the job with reelforge job show "+job.ID),
	)
	if r.deps.Notifier != nil {
		if err := r.deps.Notifier.NotifyJobFailed(persistCtx, job.ID, strategy.Title, message); err != nil {
			logger.Debug("failure notification failed", logging.Error(err))
		}
	}
	return cause
}
