package youtube

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"vidgo/internal/fetch"
	"vidgo/internal/services"
)

const stubScript = `#!/bin/sh
prev=""
out=""
for a in "$@"; do
  if [ "$prev" = "-o" ]; then out="$a"; fi
  prev="$a"
done
case "$*" in
*--dump-json*)
cat <<'EOF'
{"id":"abc123","title":"Test Clip","uploader":"channel guy","duration":42,"thumbnail":"https://example.com/t.jpg"}
EOF
;;
*)
echo "[download]  50.0% of 10.00MiB at 2.00MiB/s"
echo "[download] 100% of 10.00MiB"
: > "$out"
;;
esac
`

func writeStub(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "yt-dlp")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func TestFetchDownloadsMergedVideo(t *testing.T) {
	client := New(writeStub(t, stubScript), nil)
	workDir := t.TempDir()

	var fractions []float64
	results, err := client.Fetch(context.Background(),
		"https://www.youtube.com/watch?v=abc123",
		fetch.Params{
			WorkDir:    workDir,
			OnProgress: func(f float64) { fractions = append(fractions, f) },
		})
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	require.Equal(t, fetch.KindVideo, res.Kind)
	require.Equal(t, "Test Clip", res.Title)
	require.Equal(t, "channel guy", res.Author)
	require.InDelta(t, 42, res.DurationS, 1e-9)
	require.Equal(t, "https://example.com/t.jpg", res.ThumbnailURL)
	require.Equal(t, filepath.Join(workDir, "abc123.mp4"), res.WorkFile)
	require.FileExists(t, res.WorkFile)

	require.Equal(t, []float64{0.5, 1.0}, fractions)
}

func TestFetchSurfacesDownloaderFailure(t *testing.T) {
	client := New(writeStub(t, "#!/bin/sh\necho \"ERROR: video unavailable\" >&2\nexit 1\n"), nil)
	_, err := client.Fetch(context.Background(),
		"https://youtu.be/gone", fetch.Params{WorkDir: t.TempDir()})
	require.ErrorIs(t, err, services.ErrExternalTool)
	require.Contains(t, err.Error(), "video unavailable")
}

func TestFetchRejectsUnparseableMetadata(t *testing.T) {
	client := New(writeStub(t, "#!/bin/sh\necho not json\n"), nil)
	_, err := client.Fetch(context.Background(),
		"https://youtu.be/xyz", fetch.Params{WorkDir: t.TempDir()})
	require.ErrorIs(t, err, services.ErrParse)
}

func TestMatches(t *testing.T) {
	client := New("", nil)
	require.True(t, client.Matches("https://www.youtube.com/watch?v=a"))
	require.True(t, client.Matches("https://youtu.be/a"))
	require.False(t, client.Matches("https://www.bilibili.com/video/BV1x"))
}
