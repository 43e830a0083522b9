package preflight

import (
	"context"

	"reelforge/internal/artifacts"
	"reelforge/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// RunAll executes every check that applies to cfg. store may be nil, in
// which case the artifact check is reported as failed.
func RunAll(ctx context.Context, cfg *config.Config, store artifacts.Store) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
	}
	if cfg.Paths.MusicDir != "" {
		res := CheckDirectoryAccess("Music directory", cfg.Paths.MusicDir)
		res.Optional = true
		results = append(results, res)
	}

	results = append(results, CheckSystemDeps(cfg)...)
	results = append(results, CheckCredentials(cfg)...)
	results = append(results, CheckArtifacts(ctx, store))
	return results
}

// Failed returns the non-optional results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}
