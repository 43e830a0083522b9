package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"reelforge/internal/artifacts"
	"reelforge/internal/config"
	"reelforge/internal/deps"
)

const artifactCheckTimeout = 10 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if path == "" {
		return Result{Name: name, Detail: "path not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps turns the binary lookups for cfg into results.
func CheckSystemDeps(cfg *config.Config) []Result {
	statuses := deps.CheckBinaries(deps.Requirements(cfg))
	results := make([]Result, 0, len(statuses))
	for _, status := range statuses {
		res := Result{Name: status.Name, Passed: status.Available, Optional: status.Optional}
		if status.Available {
			res.Detail = status.Path
		} else {
			res.Detail = status.Detail
		}
		results = append(results, res)
	}
	return results
}

// CheckCredentials confirms that every remote provider in use has the
// settings it needs. It does not call the providers.
func CheckCredentials(cfg *config.Config) []Result {
	results := []Result{credentialResult("Video generation API",
		cfg.Segments.BaseURL != "" && cfg.Segments.APIKey != "",
		"segments.base_url and segments.api_key")}

	if cfg.UsesProvider(config.ProviderPremium) {
		res := credentialResult("Premium narration API",
			cfg.Narration.PremiumBaseURL != "" && cfg.Narration.PremiumAPIKey != "" && cfg.Narration.PremiumVoiceID != "",
			"narration.premium_base_url, premium_api_key and premium_voice_id")
		res.Optional = cfg.Narration.Primary != config.ProviderPremium
		results = append(results, res)
	}
	return results
}

func credentialResult(name string, ok bool, fields string) Result {
	if ok {
		return Result{Name: name, Passed: true, Detail: "configured"}
	}
	return Result{Name: name, Detail: "missing " + fields}
}

// CheckArtifacts asks the artifact store whether it can accept uploads.
func CheckArtifacts(ctx context.Context, store artifacts.Store) Result {
	const name = "Artifact store"
	if store == nil {
		return Result{Name: name, Detail: "not configured"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, artifactCheckTimeout)
	defer cancel()
	if err := store.Check(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "reachable"}
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out (store unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (store unreachable)"
	}
	return err.Error()
}
