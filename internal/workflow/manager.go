package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vidgo/internal/config"
	"vidgo/internal/logging"
	"vidgo/internal/queue"
)

// StageContext carries everything a stage function needs besides the
// context itself. OnProgress persists a 0-100 percentage on the stage
// record; OnStatus updates its human-readable message.
type StageContext struct {
	Job        *queue.Job
	Asset      *queue.Asset
	Store      *queue.Store
	Log        *slog.Logger
	OnProgress func(percent float64)
	OnStatus   func(message string)
}

// StageFunc executes one stage of a job. A nil return marks the stage
// completed; errors are classified to decide between automatic retry and
// failure.
type StageFunc func(ctx context.Context, sc *StageContext) error

// Manager owns the queue store and runs one polling loop per lane. Stage
// functions are registered by name before Start.
type Manager struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
	stages map[string]StageFunc

	pollInterval       time.Duration
	errorRetryInterval time.Duration
	heartbeat          *HeartbeatMonitor
	maxAttempts        int
	backoffBase        time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	// active maps job id to the cancel func of its in-flight stage.
	active map[int64]context.CancelFunc
}

// Option adjusts manager behavior, mostly for tests.
type Option func(*Manager)

func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) { m.pollInterval = d }
}

func WithBackoffBase(d time.Duration) Option {
	return func(m *Manager) { m.backoffBase = d }
}

func WithMaxAttempts(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

// NewManager constructs a manager. Stage functions still need to be
// registered before Start.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:                cfg,
		store:              store,
		logger:             logging.NewComponentLogger(logger, "workflow"),
		stages:             make(map[string]StageFunc),
		pollInterval:       secondsOrDefault(cfg.Workers.QueuePollInterval, 3*time.Second),
		errorRetryInterval: secondsOrDefault(cfg.Workers.ErrorRetryInterval, 5*time.Second),
		maxAttempts:        3,
		backoffBase:        2 * time.Second,
		active:             make(map[int64]context.CancelFunc),
	}
	m.heartbeat = NewHeartbeatMonitor(store, m.logger,
		secondsOrDefault(cfg.Workers.HeartbeatInterval, 15*time.Second))
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterStage binds a stage name to its executor. Registering over an
// existing name replaces it.
func (m *Manager) RegisterStage(name string, fn StageFunc) {
	m.stages[name] = fn
}

// laneWorkers returns the configured concurrency for a lane, minimum 1.
func (m *Manager) laneWorkers(lane queue.Lane) int {
	var n int
	switch lane {
	case queue.LaneDownload:
		n = m.cfg.Workers.Download
	case queue.LaneSubtitle:
		n = m.cfg.Workers.Subtitle
	case queue.LaneExport:
		n = m.cfg.Workers.Export
	}
	if n < 1 {
		n = 1
	}
	return n
}

// stageTimeout maps a stage name to its execution limit.
func (m *Manager) stageTimeout(stageName string) time.Duration {
	switch stageName {
	case queue.StageFetch:
		return minutesOrDefault(m.cfg.Timeouts.DownloadMinutes, 30*time.Minute)
	case queue.StageTranscribe:
		return minutesOrDefault(m.cfg.Timeouts.TranscribeMinutes, 60*time.Minute)
	case queue.StageBurn:
		return minutesOrDefault(m.cfg.Timeouts.ExportMinutes, 30*time.Minute)
	default:
		return minutesOrDefault(m.cfg.Timeouts.DefaultMinutes, 10*time.Minute)
	}
}

func (m *Manager) trackJob(id int64, cancel context.CancelFunc) {
	m.mu.Lock()
	m.active[id] = cancel
	m.mu.Unlock()
}

func (m *Manager) untrackJob(id int64) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
}

func secondsOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func minutesOrDefault(minutes int, fallback time.Duration) time.Duration {
	if minutes <= 0 {
		return fallback
	}
	return time.Duration(minutes) * time.Minute
}
