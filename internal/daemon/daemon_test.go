package daemon

import (
	"context"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"vidgo/internal/testsupport"
	"vidgo/internal/workflow"
)

func newTestDaemon(t *testing.T) (*Daemon, *Daemon) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	newManager := func() *workflow.Manager {
		m := workflow.NewManager(cfg, store, nil)
		m.RegisterStage("noop", func(context.Context, *workflow.StageContext) error { return nil })
		return m
	}

	first, err := New(cfg, store, nil, newManager())
	require.NoError(t, err)
	second, err := New(cfg, store, nil, newManager())
	require.NoError(t, err)
	return first, second
}

func TestDaemonSingleInstance(t *testing.T) {
	first, second := newTestDaemon(t)

	require.NoError(t, first.Start(context.Background()))
	t.Cleanup(first.Stop)

	err := second.Start(context.Background())
	require.ErrorContains(t, err, "already running")

	first.Stop()
	require.NoError(t, second.Start(context.Background()))
	second.Stop()
}

func TestDaemonRecordsPID(t *testing.T) {
	first, _ := newTestDaemon(t)

	require.NoError(t, first.Start(context.Background()))
	data, err := os.ReadFile(first.pidPath)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	require.Equal(t, os.Getpid(), pid)

	first.Stop()
	require.NoFileExists(t, first.pidPath)
}

func TestRunningPIDIgnoresStaleFile(t *testing.T) {
	first, _ := newTestDaemon(t)
	require.NoError(t, os.WriteFile(first.pidPath, []byte("999999999"), 0o644))

	_, ok := RunningPID(first.cfg)
	require.False(t, ok)
}
