package ffprobe

import (
	"testing"
)

func TestResultHelpers(t *testing.T) {
	result := Result{
		Streams: []Stream{
			{CodecType: "video", CodecName: "h264", Width: 1920, Height: 1080, BitRate: "2500000"},
			{CodecType: "audio", CodecName: "aac"},
			{CodecType: "audio", CodecName: "mp3"},
		},
		Format: Format{
			Duration: "123.45",
			Size:     "1000",
			BitRate:  "32000",
		},
	}
	if result.VideoStreamCount() != 1 {
		t.Fatalf("expected 1 video stream, got %d", result.VideoStreamCount())
	}
	if result.AudioStreamCount() != 2 {
		t.Fatalf("expected 2 audio streams, got %d", result.AudioStreamCount())
	}
	if result.DurationSeconds() != 123.45 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 1000 {
		t.Fatalf("unexpected size: %d", result.SizeBytes())
	}
	if result.VideoCodec() != "h264" || result.AudioCodec() != "aac" {
		t.Fatalf("unexpected codecs: %q %q", result.VideoCodec(), result.AudioCodec())
	}
	if w, h := result.Dimensions(); w != 1920 || h != 1080 {
		t.Fatalf("unexpected dimensions: %dx%d", w, h)
	}
	if result.VideoBitRate() != 2500000 {
		t.Fatalf("unexpected video bitrate: %d", result.VideoBitRate())
	}
}

func TestResultHelpersHandleInvalidNumbers(t *testing.T) {
	result := Result{
		Format: Format{
			Duration: "bad",
			Size:     "-1",
			BitRate:  "nope",
		},
	}
	if result.DurationSeconds() != 0 {
		t.Fatalf("expected duration 0, got %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 0 {
		t.Fatalf("expected size 0, got %d", result.SizeBytes())
	}
	if result.BitRate() != 0 {
		t.Fatalf("expected bitrate 0, got %d", result.BitRate())
	}
}

func TestVideoBitRateFallsBackToContainer(t *testing.T) {
	result := Result{
		Streams: []Stream{{CodecType: "video", CodecName: "hevc"}},
		Format:  Format{BitRate: "900000"},
	}
	if result.VideoBitRate() != 900000 {
		t.Fatalf("expected container fallback, got %d", result.VideoBitRate())
	}
}

func TestHLSCompatible(t *testing.T) {
	cases := []struct {
		name  string
		video string
		audio string
		want  bool
	}{
		{"h264 aac", "h264", "aac", true},
		{"hevc mp3", "hevc", "mp3", true},
		{"h264 ac3", "h264", "ac3", true},
		{"h264 no audio", "h264", "", true},
		{"vp9 aac", "vp9", "aac", false},
		{"h264 opus", "h264", "opus", false},
		{"no video", "", "aac", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var streams []Stream
			if tc.video != "" {
				streams = append(streams, Stream{CodecType: "video", CodecName: tc.video})
			}
			if tc.audio != "" {
				streams = append(streams, Stream{CodecType: "audio", CodecName: tc.audio})
			}
			result := Result{Streams: streams}
			if got := result.HLSCompatible(); got != tc.want {
				t.Fatalf("HLSCompatible(%s/%s) = %v, want %v", tc.video, tc.audio, got, tc.want)
			}
		})
	}
}

func TestLanguagePrefersContainerTag(t *testing.T) {
	result := Result{
		Streams: []Stream{
			{CodecType: "audio", CodecName: "aac", Tags: map[string]string{"language": "kor"}},
		},
		Format: Format{Tags: map[string]string{"language": "jpn"}},
	}
	if got := result.Language(); got != "ja" {
		t.Fatalf("expected ja, got %q", got)
	}

	result.Format.Tags = nil
	if got := result.Language(); got != "ko" {
		t.Fatalf("expected ko, got %q", got)
	}

	result.Streams[0].Tags = nil
	if got := result.Language(); got != "" {
		t.Fatalf("expected empty language, got %q", got)
	}
}
