package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reelforge/internal/artifacts"
	"reelforge/internal/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Check binaries, directories, credentials and storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			// A broken storage config is reported as a failed check rather
			// than aborting the whole report.
			store, storeErr := artifacts.New(cfg)
			results := preflight.RunAll(cmd.Context(), cfg, store)
			if storeErr != nil {
				for i := range results {
					if results[i].Name == "Artifact store" {
						results[i].Detail = storeErr.Error()
					}
				}
			}
			failed := preflight.Failed(results)

			if ctx.JSONMode() {
				items := make([]map[string]any, 0, len(results))
				for _, r := range results {
					items = append(items, map[string]any{
						"name":     r.Name,
						"passed":   r.Passed,
						"optional": r.Optional,
						"detail":   r.Detail,
					})
				}
				if err := writeJSON(cmd, map[string]any{"ready": len(failed) == 0, "checks": items}); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				for _, r := range results {
					kind := checkOK
					switch {
					case !r.Passed && r.Optional:
						kind = checkWarn
					case !r.Passed:
						kind = checkFail
					}
					checkLine(out, r.Name, kind, r.Detail)
				}
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d required check(s) failed", len(failed))
			}
			return nil
		},
	}
}
