// Package segments renders scene prompts into video clips through a Backend
// with bounded concurrency.
//
// Generate fans prompts out to at most Concurrency backend calls, each under
// its own timeout. A failing prompt never cancels its siblings: every outcome
// is captured as a tagged Result slotted at the prompt's original index, so
// the Batch always reads back in prompt order regardless of completion order.
// The optional OnResult hook observes each outcome as it lands and is never
// invoked concurrently with itself.
package segments
