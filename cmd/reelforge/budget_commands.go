package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"reelforge/internal/budget"
	"reelforge/internal/pricing"
)

func newBudgetCommand(ctx *commandContext) *cobra.Command {
	budgetCmd := &cobra.Command{
		Use:   "budget",
		Short: "Inspect the daily spending ledger",
	}

	budgetCmd.AddCommand(newBudgetStatusCommand(ctx))
	budgetCmd.AddCommand(newBudgetCheckCommand(ctx))
	budgetCmd.AddCommand(newBudgetEstimateCommand(ctx))
	budgetCmd.AddCommand(newBudgetHistoryCommand(ctx))

	return budgetCmd
}

func newBudgetStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show today's spend, headroom and cost breakdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				status, err := a.ledger.DailyStatus(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, statusJSON(status))
				}
				printBudgetStatus(cmd, status)
				return nil
			})
		},
	}
}

func printBudgetStatus(cmd *cobra.Command, status budget.Status) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Budget for %s\n\n", status.Day)

	rows := [][]string{
		{"Limit", money(status.Limit)},
		{"Spent", money(status.Spent)},
		{"Reserved", money(status.Reserved)},
		{"Remaining", money(status.Remaining)},
		{"Usage", fmt.Sprintf("%.1f%%", status.UsagePercent)},
		{"API calls", strconv.FormatInt(status.APICalls, 10)},
		{"Exceeded", yesNo(status.Exceeded)},
	}
	if status.MonthlyLimit.IsPositive() {
		rows = append(rows, []string{"Month to date", fmt.Sprintf("%s of %s", money(status.MonthSpent), money(status.MonthlyLimit))})
	}
	printTable(out, "lr", []string{"Field", "Value"}, rows)

	breakdown := make([][]string, 0, len(status.Breakdown))
	for _, cat := range pricing.Categories() {
		amount, ok := status.Breakdown[cat]
		if !ok {
			amount = decimal.Zero
		}
		breakdown = append(breakdown, []string{string(cat), money(amount)})
	}
	fmt.Fprintln(out)
	printTable(out, "lr", []string{"Category", "Spent"}, breakdown)
}

func statusJSON(status budget.Status) map[string]any {
	breakdown := make(map[string]string, len(status.Breakdown))
	for _, cat := range pricing.Categories() {
		amount, ok := status.Breakdown[cat]
		if !ok {
			amount = decimal.Zero
		}
		breakdown[string(cat)] = amount.StringFixed(2)
	}
	payload := map[string]any{
		"day":           status.Day,
		"limit":         status.Limit.StringFixed(2),
		"spent":         status.Spent.StringFixed(2),
		"reserved":      status.Reserved.StringFixed(2),
		"remaining":     status.Remaining.StringFixed(2),
		"usage_percent": status.UsagePercent,
		"exceeded":      status.Exceeded,
		"api_calls":     status.APICalls,
		"breakdown":     breakdown,
		"counters":      status.Counters,
		"month_spent":   status.MonthSpent.StringFixed(2),
		"monthly_limit": status.MonthlyLimit.StringFixed(2),
	}
	if status.ExceededAt != nil {
		payload["exceeded_at"] = status.ExceededAt
	}
	return payload
}

func newBudgetCheckCommand(ctx *commandContext) *cobra.Command {
	var amountFlag string
	var categoryFlag string
	var quantity int64
	var modeFlag string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Preview whether a cost fits today's budget",
		Long: `Preview an admission decision without recording anything.

Pass either --amount, or --category with --quantity (and --mode for
segment generation). The command exits non-zero when the cost would
be denied.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				var (
					decision budget.Decision
					err      error
				)
				switch {
				case strings.TrimSpace(amountFlag) != "":
					amount, perr := decimal.NewFromString(strings.TrimSpace(amountFlag))
					if perr != nil {
						return fmt.Errorf("parse --amount: %w", perr)
					}
					decision, err = a.ledger.CheckAmount(cmd.Context(), amount)
				case strings.TrimSpace(categoryFlag) != "":
					category, perr := pricing.ParseCategory(categoryFlag)
					if perr != nil {
						return perr
					}
					mode, perr := parseMode(modeFlag, a.cfg.Segments.Mode)
					if perr != nil {
						return perr
					}
					decision, err = a.ledger.CheckBudget(cmd.Context(), category, quantity, mode)
				default:
					return errors.New("pass --amount or --category")
				}
				if err != nil {
					return err
				}

				if ctx.JSONMode() {
					if err := writeJSON(cmd, map[string]any{
						"allowed":    decision.Allowed,
						"near_limit": decision.NearLimit,
						"estimated":  decision.Estimated.String(),
						"spent":      decision.Spent.StringFixed(2),
						"reserved":   decision.Reserved.StringFixed(2),
						"limit":      decision.Limit.StringFixed(2),
						"message":    decision.Message,
					}); err != nil {
						return err
					}
				} else {
					out := cmd.OutOrStdout()
					kind := checkOK
					switch {
					case !decision.Allowed:
						kind = checkFail
					case decision.NearLimit:
						kind = checkWarn
					}
					checkLine(out, "Estimated "+preciseMoney(decision.Estimated), kind, decision.Message)
				}
				if !decision.Allowed {
					return fmt.Errorf("%w: %s", budget.ErrAdmissionDenied, decision.Message)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&amountFlag, "amount", "", "Dollar amount to check")
	cmd.Flags().StringVar(&categoryFlag, "category", "", "Cost category (scrape, analysis, strategy-gen, segment-gen, narration-premium)")
	cmd.Flags().Int64Var(&quantity, "quantity", 1, "Units of the category")
	cmd.Flags().StringVar(&modeFlag, "mode", "", "Segment quality mode (test or production)")
	return cmd
}

func newBudgetEstimateCommand(ctx *commandContext) *cobra.Command {
	var modeFlag string

	cmd := &cobra.Command{
		Use:   "estimate <strategy-id>",
		Short: "Price a strategy and check it against today's budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseStrategyID(args[0])
			if err != nil {
				return err
			}
			return ctx.withApp(func(a *app) error {
				strategy, err := a.store.GetStrategy(cmd.Context(), id)
				if err != nil {
					return err
				}
				mode, err := parseMode(modeFlag, a.cfg.Segments.Mode)
				if err != nil {
					return err
				}
				est, err := a.catalog.EstimateProduction(strategy.ScriptChars(), int64(len(strategy.ScenePrompts)), mode, a.premiumNarration())
				if err != nil {
					return err
				}
				ok, message, err := a.ledger.CanProduce(cmd.Context(), est.Total)
				if err != nil {
					return err
				}

				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{
						"strategy_id": strategy.ID,
						"mode":        mode,
						"segments":    len(strategy.ScenePrompts),
						"characters":  strategy.ScriptChars(),
						"narration":   est.Narration.String(),
						"segment":     est.Segments.String(),
						"total":       est.Total.String(),
						"can_produce": ok,
						"message":     message,
					})
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Strategy %d: %s (%s mode)\n\n", strategy.ID, strategy.Title, mode)
				rows := [][]string{
					{"Narration", fmt.Sprintf("%d chars", strategy.ScriptChars()), preciseMoney(est.Narration)},
					{"Segments", fmt.Sprintf("%d clips", len(strategy.ScenePrompts)), preciseMoney(est.Segments)},
					{"Total", "", preciseMoney(est.Total)},
				}
				printTable(out, "lrr", []string{"Item", "Quantity", "Cost"}, rows)
				fmt.Fprintln(out)
				kind := checkOK
				if !ok {
					kind = checkFail
				}
				checkLine(out, "Admission", kind, message)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&modeFlag, "mode", "", "Segment quality mode (test or production)")
	return cmd
}

func newBudgetHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent ledger days",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				records, err := a.store.LedgerHistory(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					days := make([]map[string]any, 0, len(records))
					for _, rec := range records {
						days = append(days, map[string]any{
							"day":       rec.Day,
							"limit":     rec.DailyLimit.StringFixed(2),
							"spent":     rec.TotalSpent.StringFixed(2),
							"exceeded":  rec.Exceeded,
							"api_calls": rec.APICalls,
						})
					}
					return writeJSON(cmd, days)
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintln(out, "No ledger days recorded")
					return nil
				}
				rows := make([][]string, 0, len(records))
				for _, rec := range records {
					rows = append(rows, []string{
						rec.Day,
						money(rec.TotalSpent),
						money(rec.DailyLimit),
						strconv.FormatInt(rec.APICalls, 10),
						yesNo(rec.Exceeded),
					})
				}
				printTable(out, "lrrrl", []string{"Day", "Spent", "Limit", "Calls", "Exceeded"}, rows)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 14, "Number of days to show")
	return cmd
}

// parseMode resolves a --mode flag, falling back to the configured mode.
func parseMode(flag, fallback string) (pricing.Mode, error) {
	raw := strings.ToLower(strings.TrimSpace(flag))
	if raw == "" {
		raw = fallback
	}
	mode := pricing.Mode(raw)
	if !mode.Valid() {
		return "", fmt.Errorf("unknown mode %q (want test or production)", raw)
	}
	return mode, nil
}

func parseStrategyID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid strategy id %q", raw)
	}
	return id, nil
}
