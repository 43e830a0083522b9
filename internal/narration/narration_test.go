package narration_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"reelforge/internal/narration"
	"reelforge/internal/services"
)

type fakeSynth struct {
	name  string
	cost  decimal.Decimal
	err   error
	block bool
	calls int
}

func (f *fakeSynth) Name() string { return f.name }

func (f *fakeSynth) Synthesize(ctx context.Context, text string, _ narration.Voice, outPath string) (narration.Audio, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return narration.Audio{}, ctx.Err()
	}
	if f.err != nil {
		return narration.Audio{}, f.err
	}
	return narration.Audio{Path: outPath, DurationSeconds: 12, Cost: f.cost}, nil
}

func TestServiceUsesPrimary(t *testing.T) {
	primary := &fakeSynth{name: "premium", cost: decimal.RequireFromString("0.03")}
	fallback := &fakeSynth{name: "edge-tts"}
	svc := &narration.Service{Primary: primary, Fallback: fallback}

	audio, err := svc.Synthesize(context.Background(), "  hello world  ", narration.Voice{ID: "v"}, "/tmp/n.mp3")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if audio.Provider != "premium" || audio.Characters != 11 || !audio.Premium() {
		t.Fatalf("unexpected audio %+v", audio)
	}
	if fallback.calls != 0 {
		t.Fatal("fallback should not run when primary succeeds")
	}
}

func TestServiceFallsBackOnce(t *testing.T) {
	primary := &fakeSynth{name: "premium", err: errors.New("quota exhausted")}
	fallback := &fakeSynth{name: "edge-tts"}
	svc := &narration.Service{Primary: primary, Fallback: fallback}

	audio, err := svc.Synthesize(context.Background(), "script", narration.Voice{ID: "v"}, "/tmp/n.mp3")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if audio.Provider != "edge-tts" || audio.Premium() {
		t.Fatalf("expected free fallback audio, got %+v", audio)
	}
	if primary.calls != 1 || fallback.calls != 1 {
		t.Fatalf("calls primary=%d fallback=%d", primary.calls, fallback.calls)
	}
}

func TestServiceWrapsBothFailures(t *testing.T) {
	primary := &fakeSynth{name: "premium", err: errors.New("primary down")}
	fallback := &fakeSynth{name: "edge-tts", err: errors.New("fallback down")}
	svc := &narration.Service{Primary: primary, Fallback: fallback}

	_, err := svc.Synthesize(context.Background(), "script", narration.Voice{ID: "v"}, "/tmp/n.mp3")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	for _, want := range []string{"primary down", "fallback down"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
}

func TestServiceTimeoutMarker(t *testing.T) {
	svc := &narration.Service{Primary: &fakeSynth{name: "slow", block: true}, Timeout: 20 * time.Millisecond}
	_, err := svc.Synthesize(context.Background(), "script", narration.Voice{ID: "v"}, "/tmp/n.mp3")
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout marker, got %v", err)
	}
	if services.FailureStatus(err) != services.FailureRetryable {
		t.Fatal("timeouts should be retryable")
	}
}

func TestServiceRejectsEmptyScript(t *testing.T) {
	svc := &narration.Service{Primary: &fakeSynth{name: "p"}}
	if _, err := svc.Synthesize(context.Background(), "   ", narration.Voice{}, "/tmp/n.mp3"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var empty *narration.Service
	if _, err := empty.Synthesize(context.Background(), "x", narration.Voice{}, "/tmp/n.mp3"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

const probeJSON = `{"streams":[{"index":0,"codec_type":"audio","codec_name":"mp3","duration":"7.25"}],"format":{"duration":"7.25","size":"1000"}}`

func writeScript(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestEdgeCLIWritesAndProbes(t *testing.T) {
	dir := t.TempDir()
	edge := filepath.Join(dir, "edge-tts")
	writeScript(t, edge, `for a; do last=$a; done; printf 'ID3audio' > "$last"`)
	probePayload := filepath.Join(dir, "probe.json")
	if err := os.WriteFile(probePayload, []byte(probeJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	probe := filepath.Join(dir, "ffprobe")
	writeScript(t, probe, "cat "+probePayload)

	out := filepath.Join(dir, "work", narration.FileName)
	audio, err := narration.EdgeCLI{Binary: edge, FFprobeBinary: probe}.Synthesize(
		context.Background(), "Three words here", narration.Voice{ID: "en-US-GuyNeural"}, out)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if audio.DurationSeconds != 7.25 || !audio.Cost.IsZero() || audio.Provider != narration.EdgeProviderName {
		t.Fatalf("unexpected audio %+v", audio)
	}
	if audio.Characters != 16 {
		t.Fatalf("expected 16 characters, got %d", audio.Characters)
	}
}

func TestEdgeCLIReportsExitFailure(t *testing.T) {
	dir := t.TempDir()
	edge := filepath.Join(dir, "edge-tts")
	writeScript(t, edge, `echo "no route to speech.platform" >&2; exit 3`)

	_, err := narration.EdgeCLI{Binary: edge}.Synthesize(context.Background(), "hi", narration.Voice{ID: "v"}, filepath.Join(dir, "n.mp3"))
	if !errors.Is(err, services.ErrExternalTool) || !strings.Contains(err.Error(), "exit 3") {
		t.Fatalf("expected exit failure, got %v", err)
	}
}
