// Package deps resolves the external executables the production pipeline
// shells out to and reports whether each one can be found.
package deps

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"reelforge/internal/config"
)

// Requirement names one executable and why it is needed.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is the lookup result for one Requirement.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Path        string
	Detail      string
}

// Blocking reports whether a missing dependency should stop production.
func (s Status) Blocking() bool {
	return !s.Available && !s.Optional
}

// Requirements lists the binaries a configuration needs. edge-tts is only
// mandatory when it is the primary narration provider; as a fallback it is
// reported but optional.
func Requirements(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	reqs := []Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.FFmpegBinary(),
			Description: "Concatenates segments and mixes narration and music",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.FFprobeBinary(),
			Description: "Measures narration and final video durations",
		},
	}
	if cfg.UsesProvider(config.ProviderEdge) {
		reqs = append(reqs, Requirement{
			Name:        "edge-tts",
			Command:     cfg.Narration.EdgeBinary,
			Description: "Free narration synthesis",
			Optional:    cfg.Narration.Primary != config.ProviderEdge,
		})
	}
	return reqs
}

// CheckBinaries looks up every requirement on PATH (or at its literal path
// when the command contains a separator).
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		results = append(results, check(req))
	}
	return results
}

// Missing returns the blocking failures from statuses.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if status.Blocking() {
			missing = append(missing, status)
		}
	}
	return missing
}

func check(req Requirement) Status {
	cmd := strings.TrimSpace(req.Command)
	status := Status{
		Name:        req.Name,
		Command:     cmd,
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
	if cmd == "" {
		status.Detail = "command not configured"
		return status
	}
	resolved, err := exec.LookPath(cmd)
	if err != nil {
		if strings.ContainsRune(cmd, filepath.Separator) {
			status.Detail = fmt.Sprintf("%q is not an executable file", cmd)
		} else {
			status.Detail = fmt.Sprintf("binary %q not found in PATH", cmd)
		}
		return status
	}
	status.Available = true
	status.Path = resolved
	return status
}
