// Package subtitles turns word-level transcription output into
// display-ready subtitle tracks.
//
// The pipeline has two independent halves. The Segmenter takes a word
// timeline (one SRT cue per recognized token), asks an LLM to mark
// sentence boundaries with <br> tags, aligns the returned sentences back
// onto the timeline with a fuzzy match, and then normalizes line widths:
// over-wide lines split at the largest silence, under-wide lines merge
// into their nearest neighbor, and English words that the recognizer
// fragmented inside CJK text are rejoined from a dictionary.
//
// The Translator takes segmented cues and produces a translated track in
// two LLM passes: a faithful line-by-line draft, then a reflection pass
// that rewrites the draft into natural target-language subtitles. Batches
// run concurrently with surrounding lines as context; any batch that
// fails degrades to the faithful draft and finally to the source text, so
// the output always keeps the cue count and timestamps of the input.
//
// Width arithmetic treats a CJK glyph as 1.75 units, ASCII letters and
// digits as 1.0, and spaces and ASCII punctuation as 0.5, which tracks
// how mixed-script lines render in players.
package subtitles
