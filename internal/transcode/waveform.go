package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/renameio/v2"

	"vidgo/internal/logging"
	"vidgo/internal/services"
)

const waveformVersion = "1.0"

// Waveform is the peaks document rendered by the player's seek bar.
type Waveform struct {
	Version          string    `json:"version"`
	AudioFile        string    `json:"audio_file"`
	Duration         float64   `json:"duration"`
	SamplesPerSecond int       `json:"samples_per_second"`
	Length           int       `json:"length"`
	Peaks            []float64 `json:"peaks"`
}

// UpToDate reports whether a derived artifact exists and is at least as new
// as its source, in which case regeneration is skipped.
func UpToDate(derived, source string) bool {
	derivedInfo, err := os.Stat(derived)
	if err != nil {
		return false
	}
	sourceInfo, err := os.Stat(source)
	if err != nil {
		return false
	}
	return !derivedInfo.ModTime().Before(sourceInfo.ModTime())
}

// GenerateWaveform decodes the audio to mono float32 PCM at sps*100 Hz,
// reduces it to RMS peaks, and writes the JSON document atomically. An
// existing peaks file newer than the audio is reused as is.
func (t *Transcoder) GenerateWaveform(ctx context.Context, audio, out string, sps int) error {
	if sps <= 0 {
		return services.Wrap(services.ErrValidation, "transcode", "waveform", "samples per second must be positive", nil)
	}
	if UpToDate(out, audio) {
		t.log.Debug("waveform up to date, reusing",
			logging.String("out", out))
		return nil
	}

	probe, err := t.Probe(ctx, audio)
	if err != nil {
		return err
	}
	duration := probe.DurationSeconds()
	if duration <= 0 {
		return services.Wrap(services.ErrValidation, "transcode", "waveform", "source reports zero duration", nil)
	}

	samples, err := t.decodePCM(ctx, audio, sps*100)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return services.Wrap(services.ErrParse, "transcode", "waveform", "decoder produced no samples", nil)
	}

	peaks := reduceToPeaks(samples, duration, sps)
	doc := Waveform{
		Version:          waveformVersion,
		AudioFile:        filepath.Base(audio),
		Duration:         duration,
		SamplesPerSecond: sps,
		Length:           len(peaks),
		Peaks:            peaks,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return services.Wrap(services.ErrParse, "transcode", "waveform", "encode peaks", err)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return services.Wrap(services.ErrUnavailable, "transcode", "waveform", "create output dir", err)
	}
	if err := renameio.WriteFile(out, data, 0o644); err != nil {
		return services.Wrap(services.ErrUnavailable, "transcode", "waveform", "write "+out, err)
	}
	t.log.Debug("waveform generated",
		logging.String("out", out),
		logging.Int("peaks", len(peaks)))
	return nil
}

// decodePCM streams the audio through ffmpeg into raw little-endian float32
// samples. The runner is line oriented, so the raw byte stream goes through
// exec directly.
func (t *Transcoder) decodePCM(ctx context.Context, audio string, rate int) ([]float32, error) {
	cmd := exec.CommandContext(ctx, t.ffmpeg,
		"-v", "quiet",
		"-i", audio,
		"-f", "f32le",
		"-ac", "1",
		"-ar", fmt.Sprint(rate),
		"-",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	raw, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, services.Wrap(services.ErrCanceled, "transcode", "waveform", "decode pcm", ctx.Err())
		}
		return nil, services.Wrap(services.ErrExternalTool, "transcode", "waveform",
			"decode pcm: "+stderr.String(), err)
	}

	samples := make([]float32, len(raw)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return samples, nil
}

// reduceToPeaks collapses the sample stream into one RMS value per peak,
// clipped to [-1, 1].
func reduceToPeaks(samples []float32, duration float64, sps int) []float64 {
	peakCount := int(duration * float64(sps))
	if peakCount < 1 {
		peakCount = 1
	}
	samplesPerPeak := len(samples) / peakCount
	if samplesPerPeak < 1 {
		samplesPerPeak = 1
	}

	peaks := make([]float64, 0, peakCount+1)
	for start := 0; start < len(samples); start += samplesPerPeak {
		end := start + samplesPerPeak
		if end > len(samples) {
			end = len(samples)
		}
		var sum float64
		for _, s := range samples[start:end] {
			sum += float64(s) * float64(s)
		}
		rms := math.Sqrt(sum / float64(end-start))
		if rms > 1 {
			rms = 1
		} else if rms < -1 {
			rms = -1
		}
		peaks = append(peaks, rms)
	}
	return peaks
}
