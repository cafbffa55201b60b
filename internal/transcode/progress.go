package transcode

import (
	"strconv"
	"strings"

	"vidgo/internal/runner"
)

// progressSink parses ffmpeg "-progress pipe:1" key=value output and
// reports a completion fraction against the probed duration. ffmpeg's
// out_time_ms field is microseconds despite the name.
func progressSink(totalSeconds float64, onProgress func(float64)) func(runner.Stream, string) {
	if onProgress == nil {
		return nil
	}
	return func(stream runner.Stream, line string) {
		if stream != runner.Stdout {
			return
		}
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			return
		}
		switch key {
		case "out_time_ms":
			if totalSeconds <= 0 {
				return
			}
			micros, err := strconv.ParseInt(value, 10, 64)
			if err != nil || micros < 0 {
				return
			}
			fraction := (float64(micros) / 1e6) / totalSeconds
			if fraction > 1 {
				fraction = 1
			}
			onProgress(fraction)
		case "progress":
			if value == "end" {
				onProgress(1)
			}
		}
	}
}
