package transcribe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"vidgo/internal/config"
	"vidgo/internal/services"
	"vidgo/internal/testsupport"
)

const audioProbeJSON = `{
	"format": {"duration": "10.0", "size": "1000"},
	"streams": [{"index": 0, "codec_type": "audio", "codec_name": "mp3"}]
}`

// whisperStub finds the -f argument, prints one segment line, and writes
// the word sidecar the engine parses.
const whisperStub = `#!/bin/sh
printf '%%s\n' "$@" >> %q
audio=""
prev=""
for a in "$@"; do
  if [ "$prev" = "-f" ]; then audio="$a"; fi
  prev="$a"
done
echo "[00:00:05,000 --> 00:00:06,000]  hello"
cat > "$audio.json" <<'EOF'
{"transcription":[
  {"offsets":{"from":0,"to":500},"text":" Hello"},
  {"offsets":{"from":500,"to":900},"text":"   "},
  {"offsets":{"from":900,"to":1400},"text":" world"}
]}
EOF
`

func whisperConfig(t *testing.T, stub string) (*config.Config, string) {
	t.Helper()
	probe := filepath.Join(t.TempDir(), "ffprobe")
	require.NoError(t, os.WriteFile(probe,
		[]byte("#!/bin/sh\ncat <<'EOF'\n"+audioProbeJSON+"\nEOF\n"), 0o755))
	cfg := testsupport.NewConfig(t, testsupport.WithFFprobe(probe))

	require.NoError(t, os.MkdirAll(cfg.Transcribe.WhisperBinDir, 0o755))
	require.NoError(t, os.MkdirAll(cfg.Transcribe.WhisperModelDir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(cfg.Transcribe.WhisperBinDir, "main-cpu"), []byte(stub), 0o755))

	model := filepath.Join(cfg.Transcribe.WhisperModelDir, "ggml-large-v3.bin")
	require.NoError(t, os.WriteFile(model, []byte("weights"), 0o644))
	return cfg, model
}

func TestWhisperCPPTranscribe(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	cfg, _ := whisperConfig(t, fmt.Sprintf(whisperStub, argsFile))

	audio := filepath.Join(t.TempDir(), "clip.mp3")
	require.NoError(t, os.WriteFile(audio, []byte("mp3"), 0o644))

	engine := NewWhisperCPP(cfg, nil)
	require.NoError(t, engine.Available(context.Background(), nil))

	var fractions []float64
	var statuses []string
	srt, err := engine.Transcribe(context.Background(), nil, Request{
		AudioPath:  audio,
		Language:   "zh",
		OnStatus:   func(s string) { statuses = append(statuses, s) },
		OnProgress: func(f float64) { fractions = append(fractions, f) },
	})
	require.NoError(t, err)

	require.Contains(t, srt, "Hello")
	require.Contains(t, srt, "world")
	require.Contains(t, srt, "00:00:00,900 --> 00:00:01,400")
	require.NotContains(t, srt, "\n\n\n")
	require.NoFileExists(t, audio+".json")

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(args)), "\n")
	require.Contains(t, lines, "-ng")
	require.Contains(t, lines, "--dtw")
	require.Contains(t, lines, "large.v3")
	require.Contains(t, lines, "zh")
	require.Contains(t, lines, "-ml")

	require.Equal(t, []float64{0.5, 1.0}, fractions)
	require.Equal(t, []string{"running whisper.cpp on cpu"}, statuses)
}

func TestWhisperCPPUsesAutoLanguage(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	cfg, _ := whisperConfig(t, fmt.Sprintf(whisperStub, argsFile))

	audio := filepath.Join(t.TempDir(), "clip.mp3")
	require.NoError(t, os.WriteFile(audio, []byte("mp3"), 0o644))

	engine := NewWhisperCPP(cfg, nil)
	_, err := engine.Transcribe(context.Background(), nil, Request{
		AudioPath: audio,
		Language:  "unknown",
	})
	require.NoError(t, err)

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	require.Contains(t, strings.Split(strings.TrimSpace(string(args)), "\n"), "auto")
}

func TestWhisperCPPAvailableRequiresModel(t *testing.T) {
	cfg, model := whisperConfig(t, "#!/bin/sh\nexit 0\n")
	require.NoError(t, os.Remove(model))

	engine := NewWhisperCPP(cfg, nil)
	err := engine.Available(context.Background(), nil)
	require.ErrorIs(t, err, services.ErrUnavailable)
}

func TestWhisperCPPAvailableRequiresBinary(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	engine := NewWhisperCPP(cfg, nil)
	err := engine.Available(context.Background(), nil)
	require.ErrorIs(t, err, services.ErrUnavailable)
	require.Contains(t, err.Error(), "no whisper binary")
}

func TestWhisperCPPRejectsUnknownModel(t *testing.T) {
	cfg, _ := whisperConfig(t, "#!/bin/sh\nexit 0\n")
	cfg.Transcribe.WhisperModel = "enormous-v9"

	engine := NewWhisperCPP(cfg, nil)
	err := engine.Available(context.Background(), nil)
	require.ErrorIs(t, err, services.ErrValidation)
}

func TestWhisperCPPSurfacesToolFailure(t *testing.T) {
	cfg, _ := whisperConfig(t, "#!/bin/sh\necho \"model load failed\" >&2\nexit 3\n")

	audio := filepath.Join(t.TempDir(), "clip.mp3")
	require.NoError(t, os.WriteFile(audio, []byte("mp3"), 0o644))

	engine := NewWhisperCPP(cfg, nil)
	_, err := engine.Transcribe(context.Background(), nil, Request{AudioPath: audio})
	require.ErrorIs(t, err, services.ErrExternalTool)
	require.Contains(t, err.Error(), "model load failed")
}

func TestWordSRTFromSidecarRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp3.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"transcription":[{"offsets":{"from":0,"to":10},"text":"  "}]}`), 0o644))

	_, err := wordSRTFromSidecar(path)
	require.ErrorIs(t, err, services.ErrParse)
}

func TestProgressFromLine(t *testing.T) {
	fraction, ok := progressFromLine("[00:00:05,000 --> 00:00:06,000]  hi", 10)
	require.True(t, ok)
	require.InDelta(t, 0.5, fraction, 1e-9)

	// Never report done off a timestamp alone.
	fraction, ok = progressFromLine("[00:00:09,990 --> 00:00:10,000]  hi", 10)
	require.True(t, ok)
	require.InDelta(t, 0.98, fraction, 1e-9)

	_, ok = progressFromLine("whisper_init_state: compute buffer", 10)
	require.False(t, ok)
}

func TestThreadCountLeavesCoresForTheDaemon(t *testing.T) {
	want := runtime.NumCPU() / 3
	if want < 1 {
		want = 1
	}
	require.Equal(t, want, threadCount())
}
