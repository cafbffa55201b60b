package runner

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"vidgo/internal/services"
)

// Stream identifies which pipe a line arrived on.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

// killGracePeriod bounds how long a child may outlive an interrupt before it
// is killed outright. Cancelled stages must release the process within 5s.
const killGracePeriod = 5 * time.Second

const stderrTailLines = 40

// Command describes one external process invocation. The runner has no
// knowledge of the specific tool; progress parsing belongs to the caller.
type Command struct {
	Path    string
	Args    []string
	Env     []string
	Dir     string
	Stdin   io.Reader
	Timeout time.Duration
	// OnLine receives each decoded output line in order per stream.
	OnLine func(stream Stream, line string)
}

// Result captures the outcome of a completed process. A non-zero exit code is
// data, not an error; Err is reserved for spawn/IO failures, timeouts, and
// cancellation.
type Result struct {
	ExitCode   int
	StderrTail string
	Duration   time.Duration
}

// Run spawns the command in its own process group, streams stdout and stderr
// line by line, and enforces the timeout with an interrupt-then-kill
// escalation. Context cancellation follows the same path.
func Run(ctx context.Context, cmd Command) (Result, error) {
	var res Result
	if strings.TrimSpace(cmd.Path) == "" {
		return res, services.Wrap(services.ErrValidation, "runner", "run", "command path required", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	timedOut := false
	runCtx := ctx
	var cancel context.CancelFunc
	if cmd.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	child := exec.Command(cmd.Path, cmd.Args...)
	child.Dir = cmd.Dir
	child.Stdin = cmd.Stdin
	child.Env = mergedEnv(cmd.Env)
	// Own process group so the interrupt reaches ffmpeg's children too.
	child.SysProcAttr = &unix.SysProcAttr{Setpgid: true}

	stdout, err := child.StdoutPipe()
	if err != nil {
		return res, services.Wrap(services.ErrTransient, "runner", "run", "stdout pipe", err)
	}
	stderr, err := child.StderrPipe()
	if err != nil {
		return res, services.Wrap(services.ErrTransient, "runner", "run", "stderr pipe", err)
	}

	started := time.Now()
	if err := child.Start(); err != nil {
		return res, services.Wrap(services.ErrUnavailable, "runner", "run", "start "+cmd.Path, err)
	}

	tail := newTailBuffer(stderrTailLines)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanLines(stdout, func(line string) {
			if cmd.OnLine != nil {
				cmd.OnLine(Stdout, line)
			}
		})
	}()
	go func() {
		defer wg.Done()
		scanLines(stderr, func(line string) {
			tail.add(line)
			if cmd.OnLine != nil {
				cmd.OnLine(Stderr, line)
			}
		})
	}()

	done := make(chan error, 1)
	go func() {
		wg.Wait()
		done <- child.Wait()
	}()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-runCtx.Done():
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			timedOut = true
		}
		terminate(child)
		select {
		case waitErr = <-done:
		case <-time.After(killGracePeriod):
			kill(child)
			waitErr = <-done
		}
	}

	res.Duration = time.Since(started)
	res.StderrTail = tail.String()

	switch {
	case timedOut:
		return res, services.Wrap(services.ErrTimeout, "runner", "run", cmd.Path+" timed out", runCtx.Err())
	case ctx.Err() != nil:
		return res, services.Wrap(services.ErrCanceled, "runner", "run", cmd.Path+" canceled", ctx.Err())
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, services.Wrap(services.ErrTransient, "runner", "run", "wait "+cmd.Path, waitErr)
	}
	res.ExitCode = 0
	return res, nil
}

// CombinedOutput runs a short command and returns its combined output. Meant
// for probes and version checks, not long media operations.
func CombinedOutput(ctx context.Context, path string, args ...string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	child := exec.CommandContext(ctx, path, args...)
	out, err := child.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, services.Wrap(services.ErrExternalTool, "runner", "combined output", path, err)
		}
		return out, services.Wrap(services.ErrUnavailable, "runner", "combined output", path, err)
	}
	return out, nil
}

func mergedEnv(extra []string) []string {
	if len(extra) == 0 {
		return nil
	}
	env := os.Environ()
	return append(env, extra...)
}

func terminate(child *exec.Cmd) {
	if child.Process == nil {
		return
	}
	// Negative pid signals the whole group.
	_ = unix.Kill(-child.Process.Pid, unix.SIGINT)
}

func kill(child *exec.Cmd) {
	if child.Process == nil {
		return
	}
	_ = unix.Kill(-child.Process.Pid, unix.SIGKILL)
}

func scanLines(r io.Reader, emit func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		emit(decodeLine(scanner.Bytes()))
	}
}

type tailBuffer struct {
	mu    sync.Mutex
	limit int
	lines []string
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (b *tailBuffer) add(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
	if len(b.lines) > b.limit {
		b.lines = b.lines[len(b.lines)-b.limit:]
	}
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.lines, "\n")
}
