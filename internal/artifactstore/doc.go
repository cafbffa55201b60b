// Package artifactstore provides the content-addressed filesystem layout for
// everything the pipeline produces: videos, audio, thumbnails, subtitles,
// waveform documents, HLS segment trees, and burned exports.
//
// Files are keyed by the lowercase hex MD5 of their bytes. Writes stream to a
// sibling temp path and publish with an atomic rename, so identical content
// written twice deduplicates to a single file and readers never observe a
// partial artifact.
package artifactstore
