package production_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"reelforge/internal/artifacts"
	"reelforge/internal/assembly"
	"reelforge/internal/budget"
	"reelforge/internal/config"
	"reelforge/internal/narration"
	"reelforge/internal/pricing"
	"reelforge/internal/production"
	"reelforge/internal/segments"
	"reelforge/internal/store"
	"reelforge/internal/testsupport"
)

type fakeNarrator struct {
	cost   decimal.Decimal
	err    error
	before func()
}

func (f *fakeNarrator) Synthesize(ctx context.Context, text string, _ narration.Voice, outPath string) (narration.Audio, error) {
	if f.before != nil {
		f.before()
	}
	if err := ctx.Err(); err != nil {
		return narration.Audio{}, err
	}
	if f.err != nil {
		return narration.Audio{}, f.err
	}
	if err := os.WriteFile(outPath, []byte("mp3"), 0o644); err != nil {
		return narration.Audio{}, err
	}
	provider := narration.EdgeProviderName
	if f.cost.IsPositive() {
		provider = "premium-tts"
	}
	return narration.Audio{
		Path:            outPath,
		DurationSeconds: 14,
		Cost:            f.cost,
		Provider:        provider,
		Characters:      narration.Characters(text),
	}, nil
}

type clipBackend struct {
	fail  map[int]bool
	calls atomic.Int32
}

func (c *clipBackend) Name() string { return "fake-clips" }

func (c *clipBackend) Generate(_ context.Context, spec segments.Spec) (string, error) {
	c.calls.Add(1)
	if c.fail[spec.Index] {
		return "", fmt.Errorf("render %d rejected", spec.Index)
	}
	return spec.OutputPath, os.WriteFile(spec.OutputPath, []byte("clip"), 0o644)
}

type mediaBackend struct {
	mu           sync.Mutex
	concatenated []string
}

func (m *mediaBackend) Concatenate(_ context.Context, assets []string, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.concatenated = nil
	for _, a := range assets {
		m.concatenated = append(m.concatenated, filepath.Base(a))
	}
	return nil
}

func (m *mediaBackend) Mix(_ context.Context, req assembly.MixRequest) error {
	return os.WriteFile(req.Out, []byte("final-video"), 0o644)
}

func (m *mediaBackend) Probe(_ context.Context, path string) (assembly.MediaInfo, error) {
	return assembly.MediaInfo{Path: path, DurationSeconds: 15, Width: 1080, Height: 1920, SizeBytes: 11, VideoStreams: 1, AudioStreams: 1}, nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	completed []string
	failed    []string
}

func (n *recordingNotifier) NotifyJobCompleted(_ context.Context, jobID, _ string, _ decimal.Decimal, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, jobID)
	return nil
}

func (n *recordingNotifier) NotifyJobFailed(_ context.Context, jobID, _, reason string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, jobID+": "+reason)
	return nil
}

type harness struct {
	cfg      *config.Config
	store    *store.Store
	ledger   *budget.Ledger
	runner   *production.Runner
	narrator *fakeNarrator
	clips    *clipBackend
	media    *mediaBackend
	notifier *recordingNotifier
}

func newHarness(t *testing.T, limit float64, abort bool) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithDailyLimit(limit), testsupport.WithAbortOnExceed(abort))
	st := testsupport.MustOpenStore(t, cfg)

	catalog := pricing.Default()
	ledger := budget.New(st, catalog, budget.Options{
		DailyLimit:    cfg.DailyLimit(),
		MonthlyLimit:  cfg.MonthlyLimit(),
		AbortOnExceed: abort,
		Location:      cfg.Location(),
	})
	h := &harness{
		cfg:      cfg,
		store:    st,
		ledger:   ledger,
		narrator: &fakeNarrator{cost: decimal.Zero},
		clips:    &clipBackend{fail: map[int]bool{}},
		media:    &mediaBackend{},
		notifier: &recordingNotifier{},
	}
	runner, err := production.NewRunner(production.Deps{
		Ledger:     ledger,
		Counters:   budget.NewCounters(st, budget.Options{Location: cfg.Location()}),
		Jobs:       st,
		Strategies: st,
		Narrator:   h.narrator,
		Segments:   &segments.Generator{Backend: h.clips, Catalog: catalog, Concurrency: 2},
		Assembler:  &assembly.Assembler{Backend: h.media},
		Artifacts:  artifacts.NewLocal(cfg.Paths.ArtifactsDir),
		Notifier:   h.notifier,
		StagingDir: cfg.Paths.StagingDir,
		MusicDir:   cfg.Paths.MusicDir,
		Defaults:   production.DefaultOptions(cfg),
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	h.runner = runner
	return h
}

func (h *harness) strategy(t *testing.T, prompts int) *production.Strategy {
	t.Helper()
	list := make([]string, prompts)
	for i := range list {
		list[i] = fmt.Sprintf("scene %d", i)
	}
	return testsupport.ApprovedStrategy(t, h.store, "Five habits", "Five habits that changed my mornings.", list...)
}

func (h *harness) ledgerRecord(t *testing.T) budget.Record {
	t.Helper()
	rec, _, err := h.store.LedgerRecord(context.Background(), h.ledger.Today())
	if err != nil {
		t.Fatalf("LedgerRecord: %v", err)
	}
	return rec
}

func (h *harness) assertWorkDirRemoved(t *testing.T, jobID string) {
	t.Helper()
	if _, err := os.Stat(filepath.Join(h.cfg.Paths.StagingDir, "job-"+jobID)); !os.IsNotExist(err) {
		t.Fatalf("work directory should be removed, stat err=%v", err)
	}
}

func (h *harness) strategyStatus(t *testing.T, id int64) production.StrategyStatus {
	t.Helper()
	s, err := h.store.GetStrategy(context.Background(), id)
	if err != nil {
		t.Fatalf("GetStrategy: %v", err)
	}
	return s.Status
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestProduceCompletesWithinBudget(t *testing.T) {
	h := newHarness(t, 20, true)
	strategy := h.strategy(t, 5)
	ctx := context.Background()

	job, err := h.runner.Produce(ctx, strategy.ID, production.ProduceOptions{Mode: pricing.ModeTest})
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if job.Status != production.StatusCompleted {
		t.Fatalf("status = %s", job.Status)
	}
	if !job.CostSegments.Equal(dec("1.25")) || !job.CostTotal.Equal(dec("1.25")) || !job.CostNarration.IsZero() {
		t.Fatalf("unexpected costs narration=%s segments=%s total=%s", job.CostNarration, job.CostSegments, job.CostTotal)
	}

	rec := h.ledgerRecord(t)
	if !rec.TotalSpent.Equal(dec("1.25")) || !rec.Reserved.IsZero() || rec.Exceeded {
		t.Fatalf("unexpected ledger spent=%s reserved=%s exceeded=%v", rec.TotalSpent, rec.Reserved, rec.Exceeded)
	}

	counters, err := h.store.CounterValues(ctx, h.ledger.Today())
	if err != nil {
		t.Fatalf("CounterValues: %v", err)
	}
	if counters[budget.CounterSegmentsGenerated] != 5 || counters[budget.CounterNarrationFreeCalls] != 1 || counters[budget.CounterVideosProduced] != 1 {
		t.Fatalf("unexpected counters %v", counters)
	}

	stored, err := h.store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if stored.Status != production.StatusCompleted || len(stored.Events) != 4 || len(stored.Segments) != 5 {
		t.Fatalf("unexpected stored job status=%s events=%d segments=%d", stored.Status, len(stored.Events), len(stored.Segments))
	}
	if !strings.HasPrefix(stored.RemoteRef, "file://") || stored.FinalAsset != artifacts.UploadKey(job.ID) {
		t.Fatalf("unexpected artifact refs %q %q", stored.RemoteRef, stored.FinalAsset)
	}
	if _, err := os.Stat(filepath.Join(h.cfg.Paths.ArtifactsDir, "productions", job.ID, "final.mp4")); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(h.cfg.Paths.StagingDir, "job-"+job.ID)); !os.IsNotExist(err) {
		t.Fatal("work directory should be removed")
	}
	if got := h.strategyStatus(t, strategy.ID); got != production.StrategyProduced {
		t.Fatalf("strategy status = %s", got)
	}
	if len(h.notifier.completed) != 1 || len(h.notifier.failed) != 0 {
		t.Fatalf("notifications completed=%v failed=%v", h.notifier.completed, h.notifier.failed)
	}
}

func TestProduceToleratesPartialSegmentFailure(t *testing.T) {
	h := newHarness(t, 20, true)
	strategy := h.strategy(t, 5)
	h.clips.fail[1] = true
	h.clips.fail[3] = true

	job, err := h.runner.Produce(context.Background(), strategy.ID, production.ProduceOptions{MinSuccessful: 3})
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if job.Status != production.StatusCompleted {
		t.Fatalf("status = %s", job.Status)
	}
	want := []string{"segment_000.mp4", "segment_002.mp4", "segment_004.mp4"}
	if strings.Join(h.media.concatenated, ",") != strings.Join(want, ",") {
		t.Fatalf("assembled %v, want %v", h.media.concatenated, want)
	}
	if !job.CostSegments.Equal(dec("0.75")) || job.SucceededSegments() != 3 {
		t.Fatalf("segments cost=%s succeeded=%d", job.CostSegments, job.SucceededSegments())
	}
	if !h.ledgerRecord(t).TotalSpent.Equal(dec("0.75")) {
		t.Fatalf("ledger spent = %s", h.ledgerRecord(t).TotalSpent)
	}
}

func TestProduceFailsWhenBelowMinimum(t *testing.T) {
	h := newHarness(t, 20, true)
	strategy := h.strategy(t, 3)
	h.clips.fail[0] = true
	h.clips.fail[2] = true

	job, err := h.runner.Produce(context.Background(), strategy.ID, production.ProduceOptions{MinSuccessful: 2})
	if !errors.Is(err, assembly.ErrBelowMinimum) {
		t.Fatalf("expected below-minimum error, got %v", err)
	}
	if job.Status != production.StatusFailed {
		t.Fatalf("status = %s", job.Status)
	}
	// The one rendered clip was paid for even though the job failed.
	if !job.CostSegments.Equal(dec("0.25")) || !h.ledgerRecord(t).TotalSpent.Equal(dec("0.25")) {
		t.Fatalf("segments cost=%s ledger=%s", job.CostSegments, h.ledgerRecord(t).TotalSpent)
	}
}

func TestProduceAllSegmentsFail(t *testing.T) {
	h := newHarness(t, 20, true)
	strategy := h.strategy(t, 4)
	for i := 0; i < 4; i++ {
		h.clips.fail[i] = true
	}
	ctx := context.Background()

	job, err := h.runner.Produce(ctx, strategy.ID, production.ProduceOptions{})
	if err == nil {
		t.Fatal("expected failure")
	}
	if job.Status != production.StatusFailed || !strings.Contains(job.ErrorMessage, "all 4 segments failed") {
		t.Fatalf("status=%s message=%q", job.Status, job.ErrorMessage)
	}
	if !job.CostSegments.IsZero() || !job.CostTotal.IsZero() {
		t.Fatalf("expected zero segment cost, got %s", job.CostSegments)
	}

	rec := h.ledgerRecord(t)
	if !rec.TotalSpent.IsZero() || !rec.Reserved.IsZero() {
		t.Fatalf("ledger spent=%s reserved=%s", rec.TotalSpent, rec.Reserved)
	}
	stored, err := h.store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if stored.Status != production.StatusFailed || stored.SucceededSegments() != 0 || len(stored.Segments) != 4 {
		t.Fatalf("unexpected stored job %+v", stored)
	}
	if got := h.strategyStatus(t, strategy.ID); got != production.StrategyDraft {
		t.Fatalf("strategy should revert to draft, got %s", got)
	}
	if len(h.notifier.failed) != 1 {
		t.Fatalf("expected one failure notification, got %v", h.notifier.failed)
	}
	h.assertWorkDirRemoved(t, job.ID)
}

func TestProduceNarrationFailureStopsBeforeSegments(t *testing.T) {
	h := newHarness(t, 20, true)
	strategy := h.strategy(t, 3)
	h.narrator.err = errors.New("voice service unavailable")
	ctx := context.Background()

	job, err := h.runner.Produce(ctx, strategy.ID, production.ProduceOptions{})
	if err == nil || !strings.Contains(err.Error(), "voice service unavailable") {
		t.Fatalf("expected narration error, got %v", err)
	}
	if job.Status != production.StatusFailed {
		t.Fatalf("status = %s", job.Status)
	}
	if calls := h.clips.calls.Load(); calls != 0 {
		t.Fatalf("segment backend must not be called after narration failure, got %d calls", calls)
	}
	if !job.CostSegments.IsZero() || len(job.Segments) != 0 {
		t.Fatalf("segments=%d cost=%s", len(job.Segments), job.CostSegments)
	}
	rec := h.ledgerRecord(t)
	if !rec.TotalSpent.IsZero() || !rec.Reserved.IsZero() {
		t.Fatalf("ledger spent=%s reserved=%s", rec.TotalSpent, rec.Reserved)
	}
	if got := h.strategyStatus(t, strategy.ID); got != production.StrategyDraft {
		t.Fatalf("strategy should revert to draft, got %s", got)
	}
	stored, err := h.store.GetJob(ctx, job.ID)
	if err != nil || stored.Status != production.StatusFailed {
		t.Fatalf("stored job status=%v err=%v", stored, err)
	}
	h.assertWorkDirRemoved(t, job.ID)
}

func TestProduceStopsDispatchOnceBudgetExceeded(t *testing.T) {
	h := newHarness(t, 1.30, true)
	strategy := h.strategy(t, 5)
	// Narration bills outside the estimate, so the ceiling breaks at segment 1.
	h.narrator.cost = dec("1.00")

	job, err := h.runner.Produce(context.Background(), strategy.ID,
		production.ProduceOptions{Mode: pricing.ModeTest, Concurrency: 1})
	if !errors.Is(err, budget.ErrBudgetExceeded) {
		t.Fatalf("expected budget exceeded, got %v", err)
	}
	if job.Status != production.StatusFailed {
		t.Fatalf("status = %s", job.Status)
	}
	if calls := h.clips.calls.Load(); calls != 2 {
		t.Fatalf("no segment may be dispatched after the breach, backend saw %d calls", calls)
	}
	if !job.CostSegments.Equal(dec("0.50")) {
		t.Fatalf("only dispatched segments are charged, got %s", job.CostSegments)
	}
	rec := h.ledgerRecord(t)
	if !rec.TotalSpent.Equal(dec("1.50")) || !rec.Exceeded || !rec.Reserved.IsZero() {
		t.Fatalf("ledger spent=%s exceeded=%v reserved=%s", rec.TotalSpent, rec.Exceeded, rec.Reserved)
	}
	stored, err := h.store.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if stored.SucceededSegments() != 2 || len(stored.Segments) != 5 {
		t.Fatalf("succeeded=%d recorded=%d", stored.SucceededSegments(), len(stored.Segments))
	}
	for _, seg := range stored.Segments[2:] {
		if !seg.Failed || !strings.Contains(seg.Reason, "skipped") {
			t.Fatalf("segment %d should be recorded as skipped, got %+v", seg.Index, seg)
		}
	}
	h.assertWorkDirRemoved(t, job.ID)
}

func TestProduceDeniedLeavesNoTrace(t *testing.T) {
	h := newHarness(t, 1.00, true)
	strategy := h.strategy(t, 5)
	ctx := context.Background()

	if _, err := h.ledger.RegisterCost(ctx, budget.Charge{Category: pricing.CategoryAnalysis, Amount: dec("0.90"), Quantity: 1}); err != nil {
		t.Fatalf("prespend: %v", err)
	}

	job, err := h.runner.Produce(ctx, strategy.ID, production.ProduceOptions{Mode: pricing.ModeTest})
	if !errors.Is(err, budget.ErrAdmissionDenied) {
		t.Fatalf("expected admission denial, got %v", err)
	}
	if job != nil {
		t.Fatalf("denied admission must not return a job, got %+v", job)
	}
	if !strings.Contains(err.Error(), "budget exceeded") {
		t.Fatalf("denial should carry the decision message, got %q", err)
	}

	count, err := h.store.CountJobs(ctx)
	if err != nil || count != 0 {
		t.Fatalf("expected no job rows, got %d (%v)", count, err)
	}
	rec := h.ledgerRecord(t)
	if !rec.TotalSpent.Equal(dec("0.90")) || !rec.Reserved.IsZero() {
		t.Fatalf("ledger changed: spent=%s reserved=%s", rec.TotalSpent, rec.Reserved)
	}
	if got := h.strategyStatus(t, strategy.ID); got != production.StrategyApproved {
		t.Fatalf("strategy status changed to %s", got)
	}
}

func TestProduceAbortsAfterFanInWhenBudgetExceeded(t *testing.T) {
	h := newHarness(t, 1.50, true)
	strategy := h.strategy(t, 5)
	// Narration is priced out of the estimate but bills anyway.
	h.narrator.cost = dec("0.50")

	job, err := h.runner.Produce(context.Background(), strategy.ID, production.ProduceOptions{Mode: pricing.ModeTest})
	if !errors.Is(err, budget.ErrBudgetExceeded) {
		t.Fatalf("expected budget exceeded, got %v", err)
	}
	if job.Status != production.StatusFailed {
		t.Fatalf("status = %s", job.Status)
	}
	if !job.CostSegments.Equal(dec("1.25")) || !job.CostTotal.Equal(dec("1.75")) {
		t.Fatalf("charges must stand: segments=%s total=%s", job.CostSegments, job.CostTotal)
	}
	rec := h.ledgerRecord(t)
	if !rec.TotalSpent.Equal(dec("1.75")) || !rec.Exceeded || !rec.Reserved.IsZero() {
		t.Fatalf("ledger spent=%s exceeded=%v reserved=%s", rec.TotalSpent, rec.Exceeded, rec.Reserved)
	}
	if stored, err := h.store.GetJob(context.Background(), job.ID); err != nil || stored.SucceededSegments() != 5 {
		t.Fatalf("all segments should be recorded after fan-in: %v", err)
	}
}

func TestProduceCancelledStillRecordsFailure(t *testing.T) {
	h := newHarness(t, 20, true)
	strategy := h.strategy(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	h.narrator.before = cancel

	job, err := h.runner.Produce(ctx, strategy.ID, production.ProduceOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	stored, err := h.store.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if stored.Status != production.StatusFailed {
		t.Fatalf("cancelled job should be persisted as failed, got %s", stored.Status)
	}
	if !h.ledgerRecord(t).Reserved.IsZero() {
		t.Fatal("reservation must be released after cancellation")
	}
	if got := h.strategyStatus(t, strategy.ID); got != production.StrategyDraft {
		t.Fatalf("strategy status = %s", got)
	}
}

func TestProduceNext(t *testing.T) {
	h := newHarness(t, 20, true)
	ctx := context.Background()

	if _, err := h.runner.ProduceNext(ctx, production.ProduceOptions{}); !errors.Is(err, production.ErrNoApprovedStrategy) {
		t.Fatalf("expected ErrNoApprovedStrategy, got %v", err)
	}

	first := h.strategy(t, 1)
	second := h.strategy(t, 1)
	job, err := h.runner.ProduceNext(ctx, production.ProduceOptions{})
	if err != nil {
		t.Fatalf("ProduceNext: %v", err)
	}
	if job.StrategyID != first.ID {
		t.Fatalf("expected oldest strategy %d, got %d", first.ID, job.StrategyID)
	}
	if got := h.strategyStatus(t, second.ID); got != production.StrategyApproved {
		t.Fatalf("second strategy should still be approved, got %s", got)
	}
}

func TestProduceRejectsUnapprovedStrategy(t *testing.T) {
	h := newHarness(t, 20, true)
	ctx := context.Background()
	draft, err := h.store.CreateStrategy(ctx, production.Strategy{Title: "Draft", Script: "x", ScenePrompts: []string{"a"}})
	if err != nil {
		t.Fatalf("CreateStrategy: %v", err)
	}
	if _, err := h.runner.Produce(ctx, draft.ID, production.ProduceOptions{}); err == nil {
		t.Fatal("expected error for draft strategy")
	}
	if count, _ := h.store.CountJobs(ctx); count != 0 {
		t.Fatalf("expected no jobs, got %d", count)
	}
}
