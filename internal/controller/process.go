// Package controller launches and manages the controller-under-test as a
// child process. The controller is a black box: the harness starts it, waits
// for its status endpoint to report success, and signals it to stop during
// teardown. It is never introspected beyond its HTTP surface.
package controller

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"verifyctl/internal/poll"
	"verifyctl/pkg/logging"
)

// ErrNotReady reports that the controller never answered its readiness probe
// with success within the bounded budget. It is distinct from a convergence
// timeout and is raised before any mutation step runs.
var ErrNotReady = errors.New("controller never became ready")

// Spec describes how to launch the controller-under-test.
type Spec struct {
	// Binary is the path to the controller executable.
	Binary string
	// ConfigFile is passed via --config.
	ConfigFile string
	// CRDFilter optionally restricts the resources the controller watches,
	// passed via --crd-filter.
	CRDFilter string
	// NoOp disables the controller's real mutation side effects via --nop,
	// so a test run cannot damage the watched system.
	NoOp bool
}

// Handle represents one running controller process. A scenario owns at most
// one live handle; Stop is safe to call more than once.
type Handle struct {
	cmd  *exec.Cmd
	pid  int
	done chan error

	mu     sync.Mutex
	exited bool
}

// Start launches the controller and begins forwarding its output to the
// debug log, line by line.
func Start(spec Spec) (*Handle, error) {
	args := []string{"start", "--config", spec.ConfigFile}
	if spec.NoOp {
		args = append(args, "--nop")
	}
	if spec.CRDFilter != "" {
		args = append(args, "--crd-filter", spec.CRDFilter)
	}

	cmd := exec.Command(spec.Binary, args...)

	stdoutPipe, pipeErr := cmd.StdoutPipe()
	if pipeErr != nil {
		return nil, fmt.Errorf("stdout pipe for controller: %w", pipeErr)
	}
	stderrPipe, pipeErr := cmd.StderrPipe()
	if pipeErr != nil {
		stdoutPipe.Close()
		return nil, fmt.Errorf("stderr pipe for controller: %w", pipeErr)
	}

	if err := cmd.Start(); err != nil {
		stdoutPipe.Close()
		stderrPipe.Close()
		return nil, fmt.Errorf("failed to start controller %s %v: %w", spec.Binary, args, err)
	}

	h := &Handle{
		cmd:  cmd,
		pid:  cmd.Process.Pid,
		done: make(chan error, 1),
	}
	logging.Info("controller", "started %s (PID: %d)", spec.Binary, h.pid)

	go forwardOutput("STDOUT", h.pid, stdoutPipe)
	go forwardOutput("STDERR", h.pid, stderrPipe)

	go func() {
		err := cmd.Wait()
		h.mu.Lock()
		h.exited = true
		h.mu.Unlock()
		h.done <- err
	}()

	return h, nil
}

func forwardOutput(stream string, pid int, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logging.Debug("controller", "[PID %d %s] %s", pid, stream, scanner.Text())
	}
}

// PID returns the process identifier of the controller.
func (h *Handle) PID() int {
	return h.pid
}

// Alive reports whether the controller process is still running.
func (h *Handle) Alive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.exited
}

// Stop terminates the controller: SIGINT first for a graceful shutdown, then
// SIGKILL if it has not exited within the timeout. Stop never fails the
// scenario; problems are logged only.
func (h *Handle) Stop(timeout time.Duration) {
	if !h.Alive() {
		logging.Debug("controller", "PID %d already exited before stop", h.pid)
		return
	}

	if err := h.cmd.Process.Signal(syscall.SIGINT); err != nil {
		logging.Warn("controller", "SIGINT to PID %d failed, using SIGKILL: %v", h.pid, err)
		if err := h.cmd.Process.Kill(); err != nil {
			logging.Error("controller", err, "failed to kill PID %d", h.pid)
			return
		}
	}

	select {
	case err := <-h.done:
		if err != nil {
			logging.Debug("controller", "PID %d exited with: %v", h.pid, err)
		} else {
			logging.Debug("controller", "PID %d exited gracefully", h.pid)
		}
	case <-time.After(timeout):
		logging.Warn("controller", "graceful shutdown timeout for PID %d, forcing kill", h.pid)
		if err := h.cmd.Process.Kill(); err != nil {
			logging.Error("controller", err, "failed to kill PID %d", h.pid)
			return
		}
		<-h.done
	}
}

// WaitReady polls the readiness probe until it reports success, consuming
// one attempt per probe. A probe error (typically connection refused while
// the process is still starting) is not fatal: it consumes an attempt and is
// retried, within the same bounded budget as an unsuccessful answer.
func WaitReady(probe func() (bool, error), attempts int, interval time.Duration) error {
	_, err := poll.Until(func() (string, error) {
		ok, probeErr := probe()
		if probeErr != nil {
			return "", probeErr
		}
		return strconv.FormatBool(ok), nil
	}, func(text string) bool {
		return text == "true"
	}, attempts, interval)
	if err != nil {
		return fmt.Errorf("%w after %d attempts at %v intervals", ErrNotReady, attempts, interval)
	}
	return nil
}
