package segments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"reelforge/internal/config"
	"reelforge/internal/logging"
	"reelforge/internal/pricing"
	"reelforge/internal/services"
)

// TestModeMaxDuration caps clip length in test mode.
const TestModeMaxDuration = 5

// ErrSkipped marks a prompt that was never sent because Request.Stop asked
// the batch to wind down.
var ErrSkipped = errors.New("segment skipped")

// Spec describes one clip to render.
type Spec struct {
	Index           int
	Prompt          string
	DurationSeconds int
	AspectRatio     string
	Width           int
	Height          int
	Mode            pricing.Mode
	OutputPath      string
}

// Backend renders a single clip to spec.OutputPath and returns the written path.
type Backend interface {
	Name() string
	Generate(ctx context.Context, spec Spec) (string, error)
}

// Result is the tagged outcome of one prompt.
type Result struct {
	Index  int
	Prompt string
	Asset  string
	Cost   decimal.Decimal
	Err    error
}

// Succeeded reports whether the prompt produced an asset.
func (r Result) Succeeded() bool {
	return r.Err == nil
}

// Reason summarizes a failure for persistence ("timeout" for deadline hits).
func (r Result) Reason() string {
	switch {
	case r.Err == nil:
		return ""
	case errors.Is(r.Err, services.ErrTimeout), errors.Is(r.Err, context.DeadlineExceeded):
		return "timeout"
	default:
		return r.Err.Error()
	}
}

// Batch collects every outcome of a Generate call in prompt order.
type Batch struct {
	Results   []Result
	TotalCost decimal.Decimal
}

// Successful returns the successes in increasing index order.
func (b Batch) Successful() []Result {
	out := make([]Result, 0, len(b.Results))
	for _, r := range b.Results {
		if r.Succeeded() {
			out = append(out, r)
		}
	}
	return out
}

// Failed returns the prompts that did not produce an asset.
func (b Batch) Failed() []string {
	var out []string
	for _, r := range b.Results {
		if !r.Succeeded() {
			out = append(out, r.Prompt)
		}
	}
	return out
}

// Request describes a batch of prompts.
type Request struct {
	Prompts         []string
	DurationSeconds int
	AspectRatio     string
	Mode            pricing.Mode
	OutputDir       string
	// Concurrency overrides Generator.Concurrency when positive.
	Concurrency int
	// OnResult sees each outcome as it lands. Calls are serialized.
	OnResult func(Result)
	// Stop is consulted before each prompt is dispatched, under the same lock
	// as OnResult. A non-nil error skips the prompt without calling the
	// backend and is recorded as its failure. Calls already in flight finish.
	Stop func() error
}

// Generator fans prompts out to a Backend.
type Generator struct {
	Backend      Backend
	Catalog      pricing.Catalog
	Concurrency  int
	Timeout      time.Duration
	PromptSuffix string
	Logger       *slog.Logger
}

// FileName returns the output file name for prompt index i.
func FileName(i int) string {
	return fmt.Sprintf("segment_%03d.mp4", i)
}

// Generate renders every prompt and returns the outcomes in prompt order.
// It only returns early-cancelled results when ctx itself is cancelled.
func (g *Generator) Generate(ctx context.Context, req Request) Batch {
	logger := logging.WithContext(ctx, logging.NewComponentLogger(g.Logger, "segments"))
	results := make([]Result, len(req.Prompts))
	if len(req.Prompts) == 0 {
		return Batch{Results: results, TotalCost: decimal.Zero}
	}

	width, height, _ := config.ParseAspectRatio(req.AspectRatio)
	duration := req.DurationSeconds
	if req.Mode == pricing.ModeTest && (duration <= 0 || duration > TestModeMaxDuration) {
		duration = TestModeMaxDuration
	}
	unitCost, costErr := g.Catalog.PriceOf(pricing.CategorySegmentGen, 1, req.Mode)

	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		wrapped := services.Wrap(services.ErrConfiguration, "segments", "prepare output", req.OutputDir, err)
		for i, p := range req.Prompts {
			results[i] = Result{Index: i, Prompt: p, Cost: decimal.Zero, Err: wrapped}
		}
		return Batch{Results: results, TotalCost: decimal.Zero}
	}

	limit := g.Concurrency
	if req.Concurrency > 0 {
		limit = req.Concurrency
	}
	if limit <= 0 {
		limit = 1
	}
	var (
		group  errgroup.Group
		hookMu sync.Mutex
	)
	group.SetLimit(limit)

	logger.Info("segment generation started",
		logging.String(logging.FieldEventType, "segments_start"),
		logging.Int("prompts", len(req.Prompts)),
		logging.Int("concurrency", limit),
		logging.String("mode", string(req.Mode)),
		logging.String(logging.FieldProvider, g.backendName()),
	)

	for i, raw := range req.Prompts {
		group.Go(func() error {
			res := Result{Index: i, Prompt: raw, Cost: decimal.Zero}
			var stopErr error
			if req.Stop != nil {
				hookMu.Lock()
				stopErr = req.Stop()
				hookMu.Unlock()
			}
			switch {
			case costErr != nil:
				res.Err = costErr
			case ctx.Err() != nil:
				res.Err = ctx.Err()
			case stopErr != nil:
				res.Err = fmt.Errorf("%w: %w", ErrSkipped, stopErr)
			default:
				res.Asset, res.Err = g.render(ctx, Spec{
					Index:           i,
					Prompt:          OptimizePrompt(raw, g.PromptSuffix),
					DurationSeconds: duration,
					AspectRatio:     req.AspectRatio,
					Width:           width,
					Height:          height,
					Mode:            req.Mode,
					OutputPath:      filepath.Join(req.OutputDir, FileName(i)),
				})
				if res.Err == nil {
					res.Cost = unitCost
				}
			}
			results[i] = res

			switch {
			case errors.Is(res.Err, ErrSkipped):
				logger.Info("segment skipped",
					logging.String(logging.FieldEventType, "segment_skipped"),
					logging.Int(logging.FieldSegmentIndex, i),
					logging.String("reason", res.Reason()),
				)
			case res.Err != nil:
				logging.WarnWithContext(logger, "segment failed", "segment_failed",
					logging.Int(logging.FieldSegmentIndex, i),
					logging.String("reason", res.Reason()),
					logging.String(logging.FieldErrorHint, "check the video backend logs for this prompt"),
					logging.String(logging.FieldImpact, "segment will be skipped in assembly"),
				)
			default:
				logger.Debug("segment generated",
					logging.Int(logging.FieldSegmentIndex, i),
					logging.String("asset", res.Asset),
				)
			}

			if req.OnResult != nil {
				hookMu.Lock()
				req.OnResult(res)
				hookMu.Unlock()
			}
			// Failures are carried in results; never cancel siblings.
			return nil
		})
	}
	_ = group.Wait()

	batch := Batch{Results: results, TotalCost: decimal.Zero}
	for _, r := range results {
		if r.Succeeded() {
			batch.TotalCost = batch.TotalCost.Add(r.Cost)
		}
	}
	logger.Info("segment generation finished",
		logging.String(logging.FieldEventType, "segments_complete"),
		logging.Int("succeeded", len(batch.Successful())),
		logging.Int("failed", len(batch.Failed())),
		logging.Money(logging.FieldCost, batch.TotalCost),
	)
	return batch
}

func (g *Generator) render(ctx context.Context, spec Spec) (string, error) {
	if g.Backend == nil {
		return "", services.Wrap(services.ErrConfiguration, "segments", "render", "no video backend configured", nil)
	}
	callCtx := ctx
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}
	asset, err := g.Backend.Generate(callCtx, spec)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", services.Wrap(services.ErrTimeout, "segments", "render",
				fmt.Sprintf("segment %d exceeded %s", spec.Index, g.Timeout), err)
		}
		return "", err
	}
	if strings.TrimSpace(asset) == "" {
		asset = spec.OutputPath
	}
	return asset, nil
}

func (g *Generator) backendName() string {
	if g.Backend == nil {
		return ""
	}
	return g.Backend.Name()
}

// OptimizePrompt trims prompt and appends the comma-separated style terms in
// suffix that it does not already mention.
func OptimizePrompt(prompt, suffix string) string {
	prompt = strings.TrimSpace(prompt)
	lower := strings.ToLower(prompt)
	var additions []string
	for _, term := range strings.Split(suffix, ",") {
		term = strings.TrimSpace(term)
		if term == "" || strings.Contains(lower, strings.ToLower(term)) {
			continue
		}
		additions = append(additions, term)
	}
	if len(additions) == 0 {
		return prompt
	}
	if prompt == "" {
		return strings.Join(additions, ", ")
	}
	return prompt + ", " + strings.Join(additions, ", ")
}
