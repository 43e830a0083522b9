// Package ffprobe runs ffprobe and decodes its JSON report into the duration,
// size and resolution facts the assembler and narration providers need.
package ffprobe
