// Package assembly stitches generated segments and the narration track into
// the final vertical video.
//
// Assembler applies the minimum-success policy and delegates media work to a
// Backend. FFmpeg is the production backend: segments are joined with the
// concat demuxer without re-encoding, then narration and optional background
// music are mixed under the video and the result is probed.
package assembly
