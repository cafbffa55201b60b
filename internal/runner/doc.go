// Package runner executes external media tools (ffmpeg, ffprobe, yt-dlp,
// whisper.cpp) with line-streamed output, per-command timeouts, and group
// signalling so cancellation reliably tears down the whole child tree.
package runner
