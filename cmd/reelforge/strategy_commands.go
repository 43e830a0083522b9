package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"reelforge/internal/production"
)

func newStrategyCommand(ctx *commandContext) *cobra.Command {
	strategyCmd := &cobra.Command{
		Use:     "strategy",
		Aliases: []string{"strategies"},
		Short:   "Manage content strategies",
	}

	strategyCmd.AddCommand(newStrategyAddCommand(ctx))
	strategyCmd.AddCommand(newStrategyApproveCommand(ctx))
	strategyCmd.AddCommand(newStrategyListCommand(ctx))
	strategyCmd.AddCommand(newStrategyShowCommand(ctx))

	return strategyCmd
}

func newStrategyAddCommand(ctx *commandContext) *cobra.Command {
	var (
		title       string
		script      string
		scriptFile  string
		prompts     []string
		promptsFile string
		music       string
		musicVolume float64
		approve     bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a draft strategy from a script and scene prompts",
		Long: `Create a draft strategy.

The narration script comes from --script or --script-file. Scene prompts come
from repeated --prompt flags or from --prompts-file with one prompt per line;
blank lines and lines starting with # are ignored. Pass --approve to make the
strategy immediately eligible for production.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if scriptFile != "" {
				data, err := os.ReadFile(scriptFile)
				if err != nil {
					return fmt.Errorf("read script: %w", err)
				}
				script = string(data)
			}
			if promptsFile != "" {
				fromFile, err := readPromptFile(promptsFile)
				if err != nil {
					return err
				}
				prompts = append(prompts, fromFile...)
			}

			var volume *float64
			if cmd.Flags().Changed("music-volume") {
				if musicVolume < 0 || musicVolume > 1 {
					return fmt.Errorf("--music-volume must be between 0 and 1, got %g", musicVolume)
				}
				volume = &musicVolume
			}

			return ctx.withApp(func(a *app) error {
				created, err := a.store.CreateStrategy(cmd.Context(), production.Strategy{
					Title:        title,
					Script:       script,
					ScenePrompts: prompts,
					MusicTrack:   strings.TrimSpace(music),
					MusicVolume:  volume,
				})
				if err != nil {
					return err
				}
				if approve {
					if err := a.store.ApproveStrategy(cmd.Context(), created.ID); err != nil {
						return err
					}
					created.Status = production.StrategyApproved
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, strategyJSON(created))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created strategy %d (%s, %d scenes)\n", created.ID, created.Status, len(created.ScenePrompts))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Strategy title")
	cmd.Flags().StringVar(&script, "script", "", "Narration script text")
	cmd.Flags().StringVar(&scriptFile, "script-file", "", "Read the narration script from a file")
	cmd.Flags().StringArrayVarP(&prompts, "prompt", "p", nil, "Scene prompt (repeatable)")
	cmd.Flags().StringVar(&promptsFile, "prompts-file", "", "Read scene prompts from a file, one per line")
	cmd.Flags().StringVar(&music, "music", "", "Background music track under music_dir")
	cmd.Flags().Float64Var(&musicVolume, "music-volume", 0, "Background music volume 0-1; 0 mutes the track (default assembly.music_volume)")
	cmd.Flags().BoolVar(&approve, "approve", false, "Approve the strategy immediately")
	cmd.MarkFlagsMutuallyExclusive("script", "script-file")
	return cmd
}

func readPromptFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts: %w", err)
	}
	var prompts []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		prompts = append(prompts, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read prompts: %w", err)
	}
	return prompts, nil
}

func newStrategyApproveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <id>...",
		Short: "Approve draft strategies for production",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, raw := range args {
				id, err := parseStrategyID(raw)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			return ctx.withApp(func(a *app) error {
				for _, id := range ids {
					if err := a.store.ApproveStrategy(cmd.Context(), id); err != nil {
						return fmt.Errorf("approve strategy %d: %w", id, err)
					}
					if !ctx.JSONMode() {
						fmt.Fprintf(cmd.OutOrStdout(), "Approved strategy %d\n", id)
					}
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"approved": ids})
				}
				return nil
			})
		},
	}
}

func newStrategyListCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List strategies",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := make([]production.StrategyStatus, 0, len(statusFlags))
			for _, raw := range statusFlags {
				status, err := parseStrategyStatus(raw)
				if err != nil {
					return err
				}
				statuses = append(statuses, status)
			}
			return ctx.withApp(func(a *app) error {
				list, err := a.store.ListStrategies(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					items := make([]map[string]any, 0, len(list))
					for _, st := range list {
						items = append(items, strategyJSON(st))
					}
					return writeJSON(cmd, items)
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No strategies found")
					return nil
				}
				rows := make([][]string, 0, len(list))
				for _, st := range list {
					rows = append(rows, []string{
						strconv.FormatInt(st.ID, 10),
						truncate(st.Title, 40),
						string(st.Status),
						strconv.Itoa(len(st.ScenePrompts)),
						strconv.FormatInt(st.ScriptChars(), 10),
						humanize.Time(st.UpdatedAt),
					})
				}
				printTable(out, "rllrrl", []string{"ID", "Title", "Status", "Scenes", "Chars", "Updated"}, rows)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status (draft, approved, in_production, produced)")
	return cmd
}

func newStrategyShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a strategy's script and scene prompts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseStrategyID(args[0])
			if err != nil {
				return err
			}
			return ctx.withApp(func(a *app) error {
				st, err := a.store.GetStrategy(cmd.Context(), id)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, strategyJSON(st))
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Strategy %d: %s\n", st.ID, st.Title)
				fmt.Fprintf(out, "Status:  %s\n", st.Status)
				fmt.Fprintf(out, "Created: %s\n", st.CreatedAt.Local().Format(time.DateTime))
				switch {
				case st.MusicTrack != "" && st.MusicVolume != nil:
					fmt.Fprintf(out, "Music:   %s (volume %.2f)\n", st.MusicTrack, *st.MusicVolume)
				case st.MusicTrack != "":
					fmt.Fprintf(out, "Music:   %s (default volume)\n", st.MusicTrack)
				}
				fmt.Fprintf(out, "\nScript (%d chars):\n%s\n\n", st.ScriptChars(), st.Script)
				rows := make([][]string, 0, len(st.ScenePrompts))
				for i, p := range st.ScenePrompts {
					rows = append(rows, []string{strconv.Itoa(i), p})
				}
				printTable(out, "rl", []string{"#", "Scene prompt"}, rows)
				return nil
			})
		},
	}
}

func parseStrategyStatus(raw string) (production.StrategyStatus, error) {
	status := production.StrategyStatus(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_"))
	switch status {
	case production.StrategyDraft, production.StrategyApproved, production.StrategyInProduction, production.StrategyProduced:
		return status, nil
	default:
		return "", fmt.Errorf("unknown strategy status %q", raw)
	}
}

func strategyJSON(st *production.Strategy) map[string]any {
	return map[string]any{
		"id":            st.ID,
		"title":         st.Title,
		"status":        st.Status,
		"script":        st.Script,
		"scene_prompts": st.ScenePrompts,
		"music_track":   st.MusicTrack,
		"music_volume":  st.MusicVolume,
		"created_at":    st.CreatedAt,
		"updated_at":    st.UpdatedAt,
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
