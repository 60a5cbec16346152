// Package process is a platform-agnostic process supervisor: spawn,
// observe and kill subprocess trees, merging stdio into a log with optional
// line filtering, as a standalone supervisor shared by every backend
// adapter.
package process

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/lemonade-sdk/lemonade-gateway/internal/logging"
)

// Handle is an opaque reference to a spawned process.
type Handle struct {
	cmd       *exec.Cmd
	log       logging.Logger
	mu        sync.Mutex
	exited    bool
	exitCode  int
	exitErr   error
	waitOnce  sync.Once
	waitDone  chan struct{}
}

// SpawnOptions configures a child process launch.
type SpawnOptions struct {
	Exe           string
	Argv          []string
	Cwd           string
	EnvOverlay    map[string]string
	InheritStdio  bool
	FilterRegex   string
	LogWriter     io.Writer // used when !InheritStdio
}

// Spawn launches exe with argv and returns a Handle tracking it. When
// InheritStdio is false, stdout/stderr are piped line-by-line into
// LogWriter, dropping lines that match FilterRegex (used to suppress noisy
// periodic health-check access lines).
func Spawn(ctx context.Context, log logging.Logger, opts SpawnOptions) (*Handle, error) {
	cmd := exec.CommandContext(ctx, opts.Exe, opts.Argv...)
	cmd.Cancel = func() error { return terminate(cmd.Process) }
	cmd.WaitDelay = 5 * time.Second
	if opts.Cwd != "" {
		cmd.Dir = opts.Cwd
	}
	cmd.Env = os.Environ()
	for k, v := range opts.EnvOverlay {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	setPlatformAttrs(cmd)

	h := &Handle{cmd: cmd, log: log, waitDone: make(chan struct{})}

	if opts.InheritStdio {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	} else if opts.LogWriter != nil {
		var filter *regexp.Regexp
		if opts.FilterRegex != "" {
			var err error
			filter, err = regexp.Compile(opts.FilterRegex)
			if err != nil {
				return nil, err
			}
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, err
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			return nil, err
		}
		go pumpFiltered(stdout, opts.LogWriter, filter)
		go pumpFiltered(stderr, opts.LogWriter, filter)
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	go func() {
		err := cmd.Wait()
		h.mu.Lock()
		h.exited = true
		h.exitErr = err
		if cmd.ProcessState != nil {
			h.exitCode = cmd.ProcessState.ExitCode()
		}
		h.mu.Unlock()
		close(h.waitDone)
	}()

	return h, nil
}

func pumpFiltered(r io.Reader, w io.Writer, filter *regexp.Regexp) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if filter != nil && filter.MatchString(line) {
			continue
		}
		io.WriteString(w, line+"\n")
	}
}

// Running reports whether the process has not yet exited.
func (h *Handle) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.exited
}

// ExitCode returns the process's exit code. Valid only after Running()
// reports false.
func (h *Handle) ExitCode() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode
}

// ExitErr returns the error (if any) captured from exec.Cmd.Wait.
func (h *Handle) ExitErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

// Wait blocks until the process exits or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.waitDone:
		return h.ExitErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PID returns the process's PID, or 0 if not started.
func (h *Handle) PID() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Stop gracefully stops the process: terminate signal, wait up to 5s, then
// kill. It is idempotent.
func (h *Handle) Stop(ctx context.Context) error {
	if !h.Running() {
		return nil
	}
	if h.cmd.Process == nil {
		return nil
	}
	_ = terminate(h.cmd.Process)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.Wait(waitCtx); err == nil {
		return nil
	}

	if h.Running() {
		if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return err
		}
	}
	_ = h.Wait(context.Background())
	return nil
}

func terminate(p *os.Process) error {
	if p == nil {
		return nil
	}
	if runtime.GOOS == "windows" {
		return p.Kill()
	}
	return p.Signal(syscall.SIGTERM)
}

// Scoped acquires a process and guarantees it is stopped on every exit path
// out of fn, so a caller can never leak a running child process.
func Scoped(ctx context.Context, log logging.Logger, opts SpawnOptions, fn func(*Handle) error) error {
	h, err := Spawn(ctx, log, opts)
	if err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if stopErr := h.Stop(stopCtx); stopErr != nil {
			log.Warnf("failed to stop process %d: %v", h.PID(), stopErr)
		}
	}()
	return fn(h)
}
