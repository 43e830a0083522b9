package deps

import (
	"testing"

	"reelforge/internal/config"
	"reelforge/internal/testsupport"
)

func TestCheckBinaries(t *testing.T) {
	present := testsupport.StubExecutable(t, t.TempDir(), "present", "")
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "   "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Path != present {
		t.Fatalf("expected first requirement to resolve, got %#v", results[0])
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected detail for blank command: %q", results[2].Detail)
	}
}

func TestRequirementsFollowNarrationChain(t *testing.T) {
	cfg := config.Default()

	reqs := Requirements(&cfg)
	if len(reqs) != 3 {
		t.Fatalf("expected ffmpeg, ffprobe and edge-tts, got %d", len(reqs))
	}
	if reqs[2].Name != "edge-tts" || reqs[2].Optional {
		t.Fatalf("edge-tts should be mandatory as primary, got %#v", reqs[2])
	}

	cfg.Narration.Primary = config.ProviderPremium
	cfg.Narration.Fallback = config.ProviderEdge
	reqs = Requirements(&cfg)
	if len(reqs) != 3 || !reqs[2].Optional {
		t.Fatalf("edge-tts should be optional as fallback, got %#v", reqs)
	}

	cfg.Narration.Fallback = ""
	if reqs = Requirements(&cfg); len(reqs) != 2 {
		t.Fatalf("edge-tts should be omitted when unused, got %#v", reqs)
	}
}

func TestMissingIgnoresOptional(t *testing.T) {
	statuses := []Status{
		{Name: "a", Available: true},
		{Name: "b", Optional: true},
		{Name: "c"},
	}
	missing := Missing(statuses)
	if len(missing) != 1 || missing[0].Name != "c" {
		t.Fatalf("expected only c to block, got %#v", missing)
	}
}
