// Package transcribe turns audio files into word-level SRT text.
//
// Three engines are provided: a local whisper.cpp runner, the OpenAI audio
// API, and the external transcription API of a peer instance. The Selector
// picks the primary engine from runtime settings and falls back at most
// once when the primary is unavailable or fails.
package transcribe
