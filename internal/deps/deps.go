package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"vidgo/internal/config"
)

// Requirement defines an external tool the pipeline relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Required returns the standard tool requirements for the given configuration.
func Required(cfg *config.Config) []Requirement {
	return []Requirement{
		{Name: "FFmpeg", Command: cfg.FFmpegBinary(), Description: "Transcoding, audio extraction, HLS segmenting, subtitle burn-in"},
		{Name: "FFprobe", Command: cfg.FFprobeBinary(), Description: "Media inspection"},
		{Name: "yt-dlp", Command: cfg.YtdlpBinary(), Description: "YouTube downloads", Optional: true},
		{Name: "whisper.cpp", Command: WhisperBinary(cfg.Transcribe.WhisperBinDir, cfg.Transcribe.DevicePreference), Description: "Local transcription", Optional: true},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}
