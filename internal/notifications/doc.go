// Package notifications pushes job and budget events to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers never branch on whether notifications are enabled. The
// notifications.jobs and notifications.budget toggles silence whole event
// families without disabling the other.
package notifications
