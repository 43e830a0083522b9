// Package store persists reelforge state in SQLite: the per-day budget
// ledger and counters, strategies, production jobs, their segment outcomes,
// and the job status trail.
//
// The database runs in WAL mode with a busy timeout, and every write goes
// through a retry-on-busy helper so concurrent producers sharing one state
// directory back off instead of failing. Money columns hold integer
// micro-units; total_spent is a generated column over the category columns.
//
// Schema changes bump schemaVersion; an older database is rejected with
// ErrSchemaMismatch rather than migrated.
package store
