// Package transcode drives ffmpeg for every derived-media operation in the
// pipeline: muxing split downloads, extracting and downmixing audio,
// thumbnails, HLS segmenting, waveform peak generation, and the h264/aac
// fallback re-encode for sources whose codecs cannot be stream-copied.
//
// All operations probe with ffprobe first and report progress, where ffmpeg
// can provide it, as a fraction of the probed duration. Derived artifacts
// follow a mtime regeneration policy: rebuilt when missing or older than
// their source, reused otherwise.
package transcode
