// Package preflight checks that a production run can start: the state and
// staging directories are writable, the ffmpeg and narration binaries
// resolve, credentials are present for the configured providers, and the
// artifact store answers.
//
// The CLI "preflight" command prints every result. The produce command runs
// the same checks and refuses to reserve budget when any of them fails, so a
// misconfigured host never spends money on segments it cannot assemble.
package preflight
