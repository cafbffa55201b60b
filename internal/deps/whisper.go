package deps

import (
	"os"
	"path/filepath"
	"strings"
)

// whisperCandidates lists whisper.cpp binary names in acceleration order.
// The preference narrows the search; "auto" tries them all.
var whisperCandidates = []string{"main-cuda", "main-vulkan", "main-cpu"}

// WhisperBinary resolves the whisper.cpp binary to execute. It scans binDir
// for the accelerated builds in order, honouring the device preference, and
// returns the first executable candidate. An empty string means none found.
func WhisperBinary(binDir string, preference string) string {
	binDir = strings.TrimSpace(binDir)
	if binDir == "" {
		return ""
	}
	preference = strings.ToLower(strings.TrimSpace(preference))
	for _, name := range whisperCandidates {
		if preference != "" && preference != "auto" && name != "main-"+preference {
			continue
		}
		candidate := filepath.Join(binDir, name)
		if info, err := os.Stat(candidate); err == nil && isExecutable(info) {
			return candidate
		}
	}
	return ""
}

// WhisperDevice reports the acceleration backend implied by a resolved binary
// path, one of "cuda", "vulkan", or "cpu".
func WhisperDevice(binary string) string {
	base := filepath.Base(binary)
	return strings.TrimPrefix(base, "main-")
}

func isExecutable(info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	return info.Mode().Perm()&0o111 != 0
}
