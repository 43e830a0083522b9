package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"reelforge/internal/budget"
)

func newCountersCommand(ctx *commandContext) *cobra.Command {
	var day string

	cmd := &cobra.Command{
		Use:   "counters",
		Short: "Show operational counters for a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				target := strings.TrimSpace(day)
				if target == "" {
					target = a.ledger.Today()
				}
				values, err := a.counters.Snapshot(cmd.Context(), target)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"day": target, "counters": values})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Counters for %s\n\n", target)
				rows := make([][]string, 0, len(values))
				for _, name := range budget.CounterNames() {
					rows = append(rows, []string{name, strconv.FormatInt(values[name], 10)})
				}
				printTable(out, "lr", []string{"Counter", "Value"}, rows)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&day, "day", "", "Ledger day (YYYY-MM-DD); defaults to today")
	return cmd
}
