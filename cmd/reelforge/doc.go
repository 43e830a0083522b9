// Package main hosts the reelforge CLI.
//
// The Cobra command tree is the operator surface over the production
// pipeline: it manages strategies, reports the daily budget and counters,
// runs preflight checks, and produces videos one job at a time. Producing is
// guarded by a file lock under state_dir so two terminals can never run jobs
// against the same ledger concurrently.
//
// Commands stay thin. Pricing, admission, the job state machine and the
// provider clients all live under internal/; this package only resolves
// configuration, wires those components together and renders results.
package main
