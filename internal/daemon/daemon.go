package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/gofrs/flock"

	"vidgo/internal/config"
	"vidgo/internal/logging"
	"vidgo/internal/queue"
	"vidgo/internal/workflow"
)

// Daemon wraps the workflow manager in a single-instance process
// lifecycle: an flock guard, a pid file for the CLI, and ordered shutdown.
type Daemon struct {
	cfg      *config.Config
	log      *slog.Logger
	store    *queue.Store
	workflow *workflow.Manager

	lockPath string
	pidPath  string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// LockPath returns the daemon lock file location for a config.
func LockPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, "vidgod.lock")
}

// PIDPath returns the daemon pid file location for a config.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, "vidgod.pid")
}

func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, wf *workflow.Manager) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := LockPath(cfg)
	return &Daemon{
		cfg:      cfg,
		log:      logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		workflow: wf,
		lockPath: lockPath,
		pidPath:  PIDPath(cfg),
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock, records the pid, and launches the
// workflow lanes.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another vidgo daemon is already running")
	}

	if err := os.WriteFile(d.pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("write pid file: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		_ = os.Remove(d.pidPath)
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	d.cancel = cancel
	d.running.Store(true)
	d.log.Info("daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop drains the workflow lanes and releases the lock and pid file.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if err := os.Remove(d.pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		d.log.Warn("removing pid file failed", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.log.Warn("releasing daemon lock failed", logging.Error(err))
	}
	d.running.Store(false)
	d.log.Info("daemon stopped")
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}
