// Package budget enforces the shared daily spending ceiling.
//
// Ledger is the policy layer over a persistent Store: CheckBudget and
// CheckAmount preview admissions, Reserve atomically holds money for a job,
// RegisterCost commits actual spend (with paired counter increments) in a
// single transaction, and Release returns whatever a reservation did not use.
// Read-modify-write paths are serialized per ledger day inside the Ledger and
// are additionally guarded by conditional UPDATEs in the store, so concurrent
// jobs sharing one database cannot jointly overrun the limit at admission.
//
// Counters tracks per-day operational counts (videos produced, narration
// characters, ...). Unknown counter names are ignored.
package budget
