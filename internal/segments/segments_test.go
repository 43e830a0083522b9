package segments_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"reelforge/internal/pricing"
	"reelforge/internal/segments"
)

type fakeBackend struct {
	fail     map[int]bool
	hang     map[int]bool
	delay    func(int) time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32

	mu    sync.Mutex
	specs []segments.Spec
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Generate(ctx context.Context, spec segments.Spec) (string, error) {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		prev := f.maxSeen.Load()
		if cur <= prev || f.maxSeen.CompareAndSwap(prev, cur) {
			break
		}
	}
	f.mu.Lock()
	f.specs = append(f.specs, spec)
	f.mu.Unlock()

	if f.hang[spec.Index] {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.delay != nil {
		select {
		case <-time.After(f.delay(spec.Index)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.fail[spec.Index] {
		return "", fmt.Errorf("backend rejected prompt %d", spec.Index)
	}
	if err := os.WriteFile(spec.OutputPath, []byte("clip"), 0o644); err != nil {
		return "", err
	}
	return spec.OutputPath, nil
}

func prompts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("scene %d", i)
	}
	return out
}

func TestGeneratePreservesOrderUnderRandomDelays(t *testing.T) {
	backend := &fakeBackend{
		delay: func(int) time.Duration { return time.Duration(rand.IntN(20)) * time.Millisecond },
		fail:  map[int]bool{3: true},
	}
	gen := &segments.Generator{Backend: backend, Catalog: pricing.Default(), Concurrency: 3, Timeout: time.Second}

	var (
		hookCalls  int
		inHook     atomic.Int32
		overlapped atomic.Bool
	)
	batch := gen.Generate(context.Background(), segments.Request{
		Prompts:   prompts(8),
		Mode:      pricing.ModeTest,
		OutputDir: t.TempDir(),
		OnResult: func(segments.Result) {
			if inHook.Add(1) > 1 {
				overlapped.Store(true)
			}
			time.Sleep(time.Millisecond)
			hookCalls++
			inHook.Add(-1)
		},
	})

	if len(batch.Results) != 8 {
		t.Fatalf("expected 8 results, got %d", len(batch.Results))
	}
	for i, r := range batch.Results {
		if r.Index != i || r.Prompt != fmt.Sprintf("scene %d", i) {
			t.Fatalf("result %d out of order: %+v", i, r)
		}
	}
	successes := batch.Successful()
	if len(successes) != 7 {
		t.Fatalf("expected 7 successes, got %d", len(successes))
	}
	for i := 1; i < len(successes); i++ {
		if successes[i].Index <= successes[i-1].Index {
			t.Fatalf("successes not strictly increasing: %d after %d", successes[i].Index, successes[i-1].Index)
		}
	}
	if failed := batch.Failed(); len(failed) != 1 || failed[0] != "scene 3" {
		t.Fatalf("unexpected failed prompts %v", failed)
	}
	if !batch.TotalCost.Equal(decimal.RequireFromString("1.75")) {
		t.Fatalf("unexpected total cost %s", batch.TotalCost)
	}
	if hookCalls != 8 {
		t.Fatalf("expected hook per result, got %d", hookCalls)
	}
	if overlapped.Load() {
		t.Fatal("OnResult was invoked concurrently")
	}
	if backend.maxSeen.Load() > 3 {
		t.Fatalf("concurrency limit exceeded: %d in flight", backend.maxSeen.Load())
	}
}

func TestGenerateTimeoutIsPerPromptFailure(t *testing.T) {
	backend := &fakeBackend{hang: map[int]bool{1: true}}
	gen := &segments.Generator{Backend: backend, Catalog: pricing.Default(), Concurrency: 2, Timeout: 50 * time.Millisecond}

	batch := gen.Generate(context.Background(), segments.Request{
		Prompts:   prompts(3),
		Mode:      pricing.ModeProduction,
		OutputDir: t.TempDir(),
	})
	if batch.Results[1].Succeeded() {
		t.Fatal("expected hanging prompt to fail")
	}
	if batch.Results[1].Reason() != "timeout" {
		t.Fatalf("expected timeout reason, got %q", batch.Results[1].Reason())
	}
	if !batch.Results[1].Cost.IsZero() {
		t.Fatal("failed segment must not carry a cost")
	}
	if !batch.Results[0].Succeeded() || !batch.Results[2].Succeeded() {
		t.Fatal("siblings should not be cancelled by one timeout")
	}
	if !batch.TotalCost.Equal(decimal.RequireFromString("1")) {
		t.Fatalf("expected two production segments at 0.50, got %s", batch.TotalCost)
	}
}

func TestGenerateAllFail(t *testing.T) {
	backend := &fakeBackend{fail: map[int]bool{0: true, 1: true}}
	gen := &segments.Generator{Backend: backend, Catalog: pricing.Default(), Concurrency: 2}
	batch := gen.Generate(context.Background(), segments.Request{Prompts: prompts(2), Mode: pricing.ModeTest, OutputDir: t.TempDir()})
	if len(batch.Successful()) != 0 || !batch.TotalCost.IsZero() {
		t.Fatalf("expected no successes and zero cost, got %+v", batch)
	}
}

func TestGenerateAppliesModeAndAspect(t *testing.T) {
	backend := &fakeBackend{}
	gen := &segments.Generator{Backend: backend, Catalog: pricing.Default(), Concurrency: 1, PromptSuffix: "cinematic lighting, high quality"}
	dir := t.TempDir()
	gen.Generate(context.Background(), segments.Request{
		Prompts:         []string{"  city at dawn, high quality "},
		DurationSeconds: 8,
		AspectRatio:     "9:16",
		Mode:            pricing.ModeTest,
		OutputDir:       dir,
	})
	if len(backend.specs) != 1 {
		t.Fatalf("expected one backend call, got %d", len(backend.specs))
	}
	spec := backend.specs[0]
	if spec.DurationSeconds != segments.TestModeMaxDuration {
		t.Fatalf("test mode should cap duration, got %d", spec.DurationSeconds)
	}
	if spec.Width != 1080 || spec.Height != 1920 {
		t.Fatalf("unexpected resolution %dx%d", spec.Width, spec.Height)
	}
	if spec.Prompt != "city at dawn, high quality, cinematic lighting" {
		t.Fatalf("unexpected optimized prompt %q", spec.Prompt)
	}
	if spec.OutputPath != dir+"/segment_000.mp4" {
		t.Fatalf("unexpected output path %q", spec.OutputPath)
	}
}

func TestGenerateUnknownModeFailsEveryPrompt(t *testing.T) {
	gen := &segments.Generator{Backend: &fakeBackend{}, Catalog: pricing.Default(), Concurrency: 2}
	batch := gen.Generate(context.Background(), segments.Request{Prompts: prompts(2), Mode: "ultra", OutputDir: t.TempDir()})
	for _, r := range batch.Results {
		if r.Succeeded() {
			t.Fatalf("expected failure for unknown mode, got %+v", r)
		}
	}
}

func TestGenerateCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := &segments.Generator{Backend: &fakeBackend{}, Catalog: pricing.Default(), Concurrency: 2}
	batch := gen.Generate(ctx, segments.Request{Prompts: prompts(3), Mode: pricing.ModeTest, OutputDir: t.TempDir()})
	for _, r := range batch.Results {
		if !errors.Is(r.Err, context.Canceled) {
			t.Fatalf("expected cancellation, got %v", r.Err)
		}
	}
}

func TestGenerateStopSkipsUndispatchedPrompts(t *testing.T) {
	backend := &fakeBackend{}
	gen := &segments.Generator{Backend: backend, Catalog: pricing.Default(), Concurrency: 1}
	halt := errors.New("spend refused")

	var (
		stop error
		seen []int
	)
	batch := gen.Generate(context.Background(), segments.Request{
		Prompts:   prompts(5),
		Mode:      pricing.ModeTest,
		OutputDir: t.TempDir(),
		OnResult: func(res segments.Result) {
			seen = append(seen, res.Index)
			if res.Index == 1 {
				stop = halt
			}
		},
		Stop: func() error { return stop },
	})

	if len(backend.specs) != 2 {
		t.Fatalf("backend should only see prompts 0 and 1, got %d calls", len(backend.specs))
	}
	if len(batch.Successful()) != 2 || !batch.TotalCost.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("successes=%d cost=%s", len(batch.Successful()), batch.TotalCost)
	}
	for _, res := range batch.Results[2:] {
		if !errors.Is(res.Err, segments.ErrSkipped) || !errors.Is(res.Err, halt) {
			t.Fatalf("prompt %d: expected skip carrying the stop cause, got %v", res.Index, res.Err)
		}
		if !res.Cost.IsZero() {
			t.Fatalf("skipped prompt %d must cost nothing, got %s", res.Index, res.Cost)
		}
	}
	if len(seen) != 5 {
		t.Fatalf("OnResult should still see every prompt, got %v", seen)
	}
}

func TestOptimizePrompt(t *testing.T) {
	tests := []struct {
		prompt, suffix, want string
	}{
		{"beach", "cinematic lighting, high quality", "beach, cinematic lighting, high quality"},
		{"Beach with Cinematic Lighting", "cinematic lighting, high quality", "Beach with Cinematic Lighting, high quality"},
		{"  beach  ", "", "beach"},
	}
	for _, tc := range tests {
		if got := segments.OptimizePrompt(tc.prompt, tc.suffix); got != tc.want {
			t.Fatalf("OptimizePrompt(%q, %q) = %q, want %q", tc.prompt, tc.suffix, got, tc.want)
		}
	}
}
