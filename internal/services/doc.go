// Package services defines shared utilities consumed by the production stages
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, strategy IDs, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that translate failures
//     into a consistent classification (retryable vs fatal) for the runner.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
