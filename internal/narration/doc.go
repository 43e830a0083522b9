// Package narration turns a strategy script into a voice-over track.
//
// A Service holds a primary Synthesizer and an optional fallback. The free
// EdgeCLI provider shells out to edge-tts; the premium HTTP provider lives in
// internal/services/premiumtts and satisfies the same interface.
package narration
