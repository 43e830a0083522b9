package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"reelforge/internal/production"
)

func newJobCommand(ctx *commandContext) *cobra.Command {
	jobCmd := &cobra.Command{
		Use:     "job",
		Aliases: []string{"jobs"},
		Short:   "Inspect production jobs",
	}

	jobCmd.AddCommand(newJobListCommand(ctx))
	jobCmd.AddCommand(newJobShowCommand(ctx))

	return jobCmd
}

func newJobListCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent production jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				jobs, err := a.store.ListJobs(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					items := make([]map[string]any, 0, len(jobs))
					for _, job := range jobs {
						items = append(items, jobJSON(job))
					}
					return writeJSON(cmd, items)
				}
				out := cmd.OutOrStdout()
				if len(jobs) == 0 {
					fmt.Fprintln(out, "No jobs recorded")
					return nil
				}
				total, err := a.store.CountJobs(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					rows = append(rows, []string{
						job.ID,
						strconv.FormatInt(job.StrategyID, 10),
						production.StageLabel(job.Status),
						string(job.Mode),
						fmt.Sprintf("%d/%d", job.SucceededSegments(), len(job.Segments)),
						money(job.CostTotal),
						humanize.Time(job.CreatedAt),
					})
				}
				printTable(out, "lrllrrl", []string{"Job", "Strategy", "Status", "Mode", "Segments", "Cost", "Created"}, rows)
				if total > len(jobs) {
					fmt.Fprintf(out, "\nShowing %d of %d jobs\n", len(jobs), total)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of jobs to show")
	return cmd
}

func newJobShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job's segments, costs and status trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				job, err := a.store.GetJob(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, jobJSON(job))
				}
				out := cmd.OutOrStdout()
				printJob(out, job)

				if len(job.Events) > 0 {
					rows := make([][]string, 0, len(job.Events))
					for _, ev := range job.Events {
						rows = append(rows, []string{
							strconv.Itoa(ev.Seq),
							ev.At.Local().Format(time.TimeOnly),
							fmt.Sprintf("%s → %s", ev.From, ev.To),
							ev.Message,
						})
					}
					fmt.Fprintln(out)
					printTable(out, "rlll", []string{"#", "At", "Transition", "Message"}, rows)
				}
				return nil
			})
		},
	}
}

func printJob(out io.Writer, job *production.Job) {
	fmt.Fprintf(out, "Job %s (strategy %d)\n", job.ID, job.StrategyID)
	fmt.Fprintf(out, "Status:    %s\n", production.StageLabel(job.Status))
	fmt.Fprintf(out, "Mode:      %s\n", job.Mode)
	fmt.Fprintf(out, "Estimate:  %s\n", money(job.EstimatedCost))
	fmt.Fprintf(out, "Cost:      %s (narration %s, segments %s)\n",
		money(job.CostTotal), money(job.CostNarration), money(job.CostSegments))
	if job.NarrationProvider != "" {
		fmt.Fprintf(out, "Narration: %s, %.1fs\n", job.NarrationProvider, job.NarrationDuration)
	}
	if job.FinalAsset != "" {
		fmt.Fprintf(out, "Video:     %.1fs %dx%d, %s\n", job.FinalDuration, job.FinalWidth, job.FinalHeight,
			humanize.Bytes(uint64(max(job.FinalSizeBytes, 0))))
	}
	if job.RemoteRef != "" {
		fmt.Fprintf(out, "Stored at: %s\n", job.RemoteRef)
	}
	if job.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:     %s\n", job.ErrorMessage)
	}

	if len(job.Segments) == 0 {
		return
	}
	rows := make([][]string, 0, len(job.Segments))
	for _, seg := range job.Segments {
		state := "ok"
		if seg.Failed {
			state = "failed: " + seg.Reason
		}
		rows = append(rows, []string{strconv.Itoa(seg.Index), truncate(seg.Prompt, 48), state, money(seg.Cost)})
	}
	fmt.Fprintln(out)
	printTable(out, "rllr", []string{"#", "Prompt", "Result", "Cost"}, rows)
}

func jobJSON(job *production.Job) map[string]any {
	segs := make([]map[string]any, 0, len(job.Segments))
	for _, seg := range job.Segments {
		segs = append(segs, map[string]any{
			"index":  seg.Index,
			"prompt": seg.Prompt,
			"asset":  seg.Asset,
			"failed": seg.Failed,
			"reason": seg.Reason,
			"cost":   seg.Cost.String(),
		})
	}
	events := make([]map[string]any, 0, len(job.Events))
	for _, ev := range job.Events {
		events = append(events, map[string]any{
			"seq":     ev.Seq,
			"from":    ev.From,
			"to":      ev.To,
			"message": ev.Message,
			"at":      ev.At,
		})
	}
	return map[string]any{
		"id":             job.ID,
		"strategy_id":    job.StrategyID,
		"status":         job.Status,
		"mode":           job.Mode,
		"min_successful": job.MinSuccessful,
		"estimated_cost": job.EstimatedCost.String(),
		"cost_narration": job.CostNarration.String(),
		"cost_segments":  job.CostSegments.String(),
		"cost_total":     job.CostTotal.String(),
		"narration":      job.NarrationAsset,
		"final_asset":    job.FinalAsset,
		"remote_ref":     job.RemoteRef,
		"duration":       job.FinalDuration,
		"width":          job.FinalWidth,
		"height":         job.FinalHeight,
		"size_bytes":     job.FinalSizeBytes,
		"error":          job.ErrorMessage,
		"segments":       segs,
		"events":         events,
		"created_at":     job.CreatedAt,
		"updated_at":     job.UpdatedAt,
	}
}
