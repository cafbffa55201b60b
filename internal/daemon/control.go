package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"vidgo/internal/config"
)

// RunningPID reports the pid recorded by a live daemon, if any. A stale
// pid file left by a crashed process does not count as running.
func RunningPID(cfg *config.Config) (int, bool) {
	data, err := os.ReadFile(PIDPath(cfg))
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	if err := unix.Kill(pid, 0); err != nil {
		return 0, false
	}
	return pid, true
}

// SignalStop asks a running daemon to shut down.
func SignalStop(cfg *config.Config) error {
	pid, ok := RunningPID(cfg)
	if !ok {
		return errors.New("no running daemon found")
	}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		return fmt.Errorf("signal daemon pid %d: %w", pid, err)
	}
	return nil
}
