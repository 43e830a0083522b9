package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

// preciseMoney keeps sub-cent amounts such as per-character prices readable.
func preciseMoney(d decimal.Decimal) string {
	return "$" + d.String()
}

type checkKind int

const (
	checkOK checkKind = iota
	checkWarn
	checkFail
)

func checkLine(out io.Writer, label string, kind checkKind, detail string) {
	tag, color := "OK", ansiGreen
	switch kind {
	case checkWarn:
		tag, color = "WARN", ansiYellow
	case checkFail:
		tag, color = "FAIL", ansiRed
	}
	line := fmt.Sprintf("  %-24s [%s] %s", label+":", tag, detail)
	if shouldColorize(out) {
		line = color + line + ansiReset
	}
	fmt.Fprintln(out, line)
}
