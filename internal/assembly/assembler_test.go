package assembly_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"reelforge/internal/assembly"
	"reelforge/internal/segments"
	"reelforge/internal/services"
)

type fakeBackend struct {
	concatenated []string
	mix          assembly.MixRequest
	info         assembly.MediaInfo
	mixErr       error
}

func (f *fakeBackend) Concatenate(_ context.Context, assets []string, _ string) error {
	f.concatenated = append([]string(nil), assets...)
	return nil
}

func (f *fakeBackend) Mix(_ context.Context, req assembly.MixRequest) error {
	f.mix = req
	return f.mixErr
}

func (f *fakeBackend) Probe(_ context.Context, path string) (assembly.MediaInfo, error) {
	info := f.info
	info.Path = path
	return info, nil
}

func results(pattern ...bool) []segments.Result {
	out := make([]segments.Result, len(pattern))
	for i, ok := range pattern {
		out[i] = segments.Result{Index: i, Prompt: "p", Asset: segments.FileName(i)}
		if !ok {
			out[i].Asset = ""
			out[i].Err = errors.New("render failed")
		}
	}
	return out
}

func TestAssembleUsesSuccessesInOrder(t *testing.T) {
	backend := &fakeBackend{info: assembly.MediaInfo{VideoStreams: 1, AudioStreams: 1, DurationSeconds: 15, Width: 1080, Height: 1920}}
	asm := &assembly.Assembler{Backend: backend}
	work := t.TempDir()

	out, err := asm.Assemble(context.Background(), assembly.Input{
		Segments:      results(true, false, true, false, true),
		Narration:     "narration.mp3",
		MinSuccessful: 3,
		WorkDir:       work,
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	want := []string{"segment_000.mp4", "segment_002.mp4", "segment_004.mp4"}
	if !reflect.DeepEqual(backend.concatenated, want) {
		t.Fatalf("concatenated %v, want %v", backend.concatenated, want)
	}
	if len(out.UsedSegments) != 3 || out.Path != filepath.Join(work, assembly.FinalFileName) {
		t.Fatalf("unexpected output %+v", out)
	}
	if backend.mix.Music != "" {
		t.Fatalf("expected no music, got %q", backend.mix.Music)
	}
}

func TestAssembleBelowMinimum(t *testing.T) {
	asm := &assembly.Assembler{Backend: &fakeBackend{}}
	_, err := asm.Assemble(context.Background(), assembly.Input{
		Segments:      results(true, false, false),
		Narration:     "n.mp3",
		MinSuccessful: 2,
		WorkDir:       t.TempDir(),
	})
	if !errors.Is(err, assembly.ErrBelowMinimum) || !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected below-minimum validation error, got %v", err)
	}
}

func TestAssembleZeroSuccessesAlwaysFails(t *testing.T) {
	asm := &assembly.Assembler{Backend: &fakeBackend{}}
	_, err := asm.Assemble(context.Background(), assembly.Input{
		Segments:  results(false, false),
		Narration: "n.mp3",
		WorkDir:   t.TempDir(),
	})
	if !errors.Is(err, assembly.ErrBelowMinimum) {
		t.Fatalf("expected below-minimum error, got %v", err)
	}
}

func TestAssembleSkipsMissingMusic(t *testing.T) {
	backend := &fakeBackend{info: assembly.MediaInfo{VideoStreams: 1}}
	asm := &assembly.Assembler{Backend: backend}
	_, err := asm.Assemble(context.Background(), assembly.Input{
		Segments:    results(true),
		Narration:   "n.mp3",
		Music:       filepath.Join(t.TempDir(), "missing.mp3"),
		MusicVolume: 0.3,
		WorkDir:     t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if backend.mix.Music != "" {
		t.Fatalf("missing music should be dropped, got %q", backend.mix.Music)
	}
}

func TestAssembleKeepsExistingMusic(t *testing.T) {
	music := filepath.Join(t.TempDir(), "bed.mp3")
	if err := os.WriteFile(music, []byte("mp3"), 0o644); err != nil {
		t.Fatal(err)
	}
	backend := &fakeBackend{info: assembly.MediaInfo{VideoStreams: 1}}
	asm := &assembly.Assembler{Backend: backend}
	if _, err := asm.Assemble(context.Background(), assembly.Input{
		Segments:    results(true),
		Narration:   "n.mp3",
		Music:       music,
		MusicVolume: 0.25,
		WorkDir:     t.TempDir(),
	}); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if backend.mix.Music != music || backend.mix.MusicVolume != 0.25 {
		t.Fatalf("unexpected mix request %+v", backend.mix)
	}
}

func TestAssembleWrapsBackendFailure(t *testing.T) {
	asm := &assembly.Assembler{Backend: &fakeBackend{mixErr: errors.New("ffmpeg exploded")}}
	_, err := asm.Assemble(context.Background(), assembly.Input{Segments: results(true), Narration: "n.mp3", WorkDir: t.TempDir()})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestResolveMusic(t *testing.T) {
	cases := []struct{ dir, track, want string }{
		{"/music", "", ""},
		{"/music", "calm.mp3", "/music/calm.mp3"},
		{"/music", "/abs/calm.mp3", "/abs/calm.mp3"},
		{"", "calm.mp3", "calm.mp3"},
	}
	for _, tc := range cases {
		if got := assembly.ResolveMusic(tc.dir, tc.track); got != tc.want {
			t.Fatalf("ResolveMusic(%q,%q)=%q want %q", tc.dir, tc.track, got, tc.want)
		}
	}
}
