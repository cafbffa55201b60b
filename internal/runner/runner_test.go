package runner_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vidgo/internal/runner"
	"vidgo/internal/services"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestRunStreamsLinesInOrder(t *testing.T) {
	script := writeScript(t, `echo one
echo two
echo err >&2
echo three`)

	var mu sync.Mutex
	var stdout []string
	var stderr []string
	res, err := runner.Run(context.Background(), runner.Command{
		Path: script,
		OnLine: func(stream runner.Stream, line string) {
			mu.Lock()
			defer mu.Unlock()
			if stream == runner.Stdout {
				stdout = append(stdout, line)
			} else {
				stderr = append(stderr, line)
			}
		},
	})
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.Equal(t, []string{"one", "two", "three"}, stdout)
	require.Equal(t, []string{"err"}, stderr)
	require.Equal(t, "err", res.StderrTail)
}

func TestRunNonZeroExitIsData(t *testing.T) {
	script := writeScript(t, `echo boom >&2
exit 3`)

	res, err := runner.Run(context.Background(), runner.Command{Path: script})
	require.NoError(t, err)
	require.Equal(t, 3, res.ExitCode)
	require.Contains(t, res.StderrTail, "boom")
}

func TestRunTimeoutClassifiesAsTimeout(t *testing.T) {
	script := writeScript(t, `sleep 30`)

	start := time.Now()
	_, err := runner.Run(context.Background(), runner.Command{
		Path:    script,
		Timeout: 100 * time.Millisecond,
	})
	require.Error(t, err)
	require.ErrorIs(t, err, services.ErrTimeout)
	require.Less(t, time.Since(start), 10*time.Second)
}

func TestRunCancelKillsChild(t *testing.T) {
	script := writeScript(t, `sleep 30`)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := runner.Run(ctx, runner.Command{Path: script})
	require.Error(t, err)
	require.ErrorIs(t, err, services.ErrCanceled)
	require.Less(t, time.Since(start), 10*time.Second)
}

func TestRunMissingBinary(t *testing.T) {
	_, err := runner.Run(context.Background(), runner.Command{Path: "/nonexistent/tool"})
	require.Error(t, err)
	require.ErrorIs(t, err, services.ErrUnavailable)
}

func TestRunRequiresPath(t *testing.T) {
	_, err := runner.Run(context.Background(), runner.Command{})
	require.ErrorIs(t, err, services.ErrValidation)
}

func TestCombinedOutput(t *testing.T) {
	script := writeScript(t, `echo hello`)
	out, err := runner.CombinedOutput(context.Background(), script)
	require.NoError(t, err)
	require.Contains(t, string(out), "hello")
}
