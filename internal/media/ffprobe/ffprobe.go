package ffprobe

import (
	"context"
	"encoding/json"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"vidgo/internal/language"
	"vidgo/internal/services"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
	raw     []byte
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index      int               `json:"index"`
	CodecName  string            `json:"codec_name"`
	CodecType  string            `json:"codec_type"`
	CodecTag   string            `json:"codec_tag_string"`
	Duration   string            `json:"duration"`
	BitRate    string            `json:"bit_rate"`
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	SampleRate string            `json:"sample_rate"`
	Channels   int               `json:"channels"`
	Tags       map[string]string `json:"tags"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string            `json:"filename"`
	NBStreams  int               `json:"nb_streams"`
	Duration   string            `json:"duration"`
	Size       string            `json:"size"`
	BitRate    string            `json:"bit_rate"`
	FormatName string            `json:"format_name"`
	Tags       map[string]string `json:"tags"`
}

// hlsVideoCodecs and hlsAudioCodecs enumerate codecs that HLS segmenting can
// copy without re-encoding.
var hlsVideoCodecs = map[string]bool{
	"h264": true,
	"hevc": true,
}

var hlsAudioCodecs = map[string]bool{
	"aac": true,
	"mp3": true,
	"ac3": true,
}

// Inspect executes ffprobe against the provided path and decodes the JSON response.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, services.Wrap(services.ErrValidation, "ffprobe", "inspect", "empty path", nil)
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "ffprobe", "inspect", strings.TrimSpace(string(output)), err)
	}

	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, services.Wrap(services.ErrParse, "ffprobe", "inspect", "decode json", err)
	}
	result.raw = append([]byte(nil), output...)
	return result, nil
}

// RawJSON returns the raw ffprobe JSON payload.
func (r Result) RawJSON() []byte {
	return append([]byte(nil), r.raw...)
}

// VideoStreamCount returns the number of video streams discovered.
func (r Result) VideoStreamCount() int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			count++
		}
	}
	return count
}

// AudioStreamCount returns the number of audio streams discovered.
func (r Result) AudioStreamCount() int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "audio") {
			count++
		}
	}
	return count
}

// HasAudio reports whether the container carries at least one audio stream.
func (r Result) HasAudio() bool {
	return r.AudioStreamCount() > 0
}

// VideoCodec returns the codec name of the first video stream, or "".
func (r Result) VideoCodec() string {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			return strings.ToLower(stream.CodecName)
		}
	}
	return ""
}

// AudioCodec returns the codec name of the first audio stream, or "".
func (r Result) AudioCodec() string {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "audio") {
			return strings.ToLower(stream.CodecName)
		}
	}
	return ""
}

// Dimensions returns the width and height of the first video stream.
func (r Result) Dimensions() (int, int) {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			return stream.Width, stream.Height
		}
	}
	return 0, 0
}

// VideoBitRate returns the bitrate of the first video stream, falling back to
// the container bitrate when the stream does not report one.
func (r Result) VideoBitRate() int64 {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			if rate := parseFloat(stream.BitRate); !math.IsNaN(rate) && rate > 0 {
				return int64(rate)
			}
			break
		}
	}
	return r.BitRate()
}

// HLSCompatible reports whether every stream can be copied into an HLS
// playlist without re-encoding. Audio is optional; unknown codecs fail.
func (r Result) HLSCompatible() bool {
	if !hlsVideoCodecs[r.VideoCodec()] {
		return false
	}
	if r.AudioStreamCount() == 0 {
		return true
	}
	return hlsAudioCodecs[r.AudioCodec()]
}

// Language returns the ISO 639-1 language tagged on the container or, failing
// that, on the first stream carrying one. Empty when nothing is tagged.
func (r Result) Language() string {
	if code := language.FromTags(r.Format.Tags); code != "" {
		return code
	}
	for _, stream := range r.Streams {
		if code := language.FromTags(stream.Tags); code != "" {
			return code
		}
	}
	return ""
}

// DurationSeconds returns the container duration in seconds, or 0 when unavailable.
func (r Result) DurationSeconds() float64 {
	duration := parseFloat(r.Format.Duration)
	if math.IsNaN(duration) || duration < 0 {
		return 0
	}
	return duration
}

// SizeBytes returns the reported container size in bytes, or 0 when unavailable.
func (r Result) SizeBytes() int64 {
	size := parseFloat(r.Format.Size)
	if math.IsNaN(size) || size < 0 {
		return 0
	}
	return int64(size)
}

// BitRate returns the container bitrate in bits per second, or 0 when unavailable.
func (r Result) BitRate() int64 {
	rate := parseFloat(r.Format.BitRate)
	if math.IsNaN(rate) || rate < 0 {
		return 0
	}
	return int64(rate)
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
