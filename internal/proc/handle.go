// Package proc owns the pseudo-terminal-backed child process for one
// session. A Handle is created by spawning, exclusively owned by its
// session, and released deterministically on termination, timeout, or
// unexpected exit. It is never shared across sessions.
package proc

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"agentdeck/internal/logger"
)

const readBufSize = 32 * 1024

// ExitStatus describes how the child process ended.
type ExitStatus struct {
	Code   int
	Signal bool
	Err    error
}

// Spec describes the process to launch.
type Spec struct {
	Command    string
	Args       []string
	WorkingDir string
	Env        []string
}

// Handle is one PTY-backed child process with serialized stdin access.
type Handle struct {
	cmd  *exec.Cmd
	ptmx *os.File
	done chan ExitStatus

	mu     sync.Mutex
	closed bool
}

// Spawn launches the process under a PTY and starts a read loop that
// delivers output chunks to sink in order. sink is called from a single
// goroutine, so chunk order on the PTY is chunk order at the sink. The
// read loop stops when the process exits and the PTY drains.
func Spawn(spec Spec, sink func([]byte)) (*Handle, error) {
	bin, err := exec.LookPath(spec.Command)
	if err != nil {
		return nil, fmt.Errorf("%s not found in PATH", spec.Command)
	}

	cmd := exec.Command(bin, spec.Args...)
	cmd.Dir = spec.WorkingDir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Command, err)
	}
	_ = pty.Setsize(ptmx, &pty.Winsize{Rows: 40, Cols: 200})

	h := &Handle{
		cmd:  cmd,
		ptmx: ptmx,
		done: make(chan ExitStatus, 1),
	}

	go h.readLoop(sink)
	return h, nil
}

func (h *Handle) readLoop(sink func([]byte)) {
	log := logger.WithComponent("proc")
	buf := make([]byte, readBufSize)
	for {
		n, err := h.ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			sink(chunk)
		}
		if err != nil {
			// EIO is the normal PTY close signal on Linux.
			break
		}
	}

	err := h.cmd.Wait()
	h.closePTY()

	status := ExitStatus{}
	if err != nil {
		status.Err = err
		if exitErr, ok := err.(*exec.ExitError); ok {
			status.Code = exitErr.ExitCode()
			if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
				status.Signal = true
			}
		} else {
			status.Code = -1
		}
	}
	log.Debug("process exited", "pid", h.Pid(), "code", status.Code, "signaled", status.Signal)
	h.done <- status
}

// Write sends bytes to the process's stdin.
func (h *Handle) Write(data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("process input closed")
	}
	_, err := h.ptmx.Write(data)
	return err
}

// Interrupt sends SIGINT, the Ctrl-C equivalent. Session state is
// unaffected; the agent decides how to react.
func (h *Handle) Interrupt() error {
	if h.cmd.Process == nil {
		return fmt.Errorf("process not started")
	}
	return h.cmd.Process.Signal(os.Interrupt)
}

// Terminate asks the process to exit with SIGTERM and force-kills it if
// it is still alive after grace. It returns once the process has exited
// or the kill was issued.
func (h *Handle) Terminate(grace time.Duration) {
	if h.cmd.Process == nil {
		return
	}
	_ = h.cmd.Process.Signal(syscall.SIGTERM)

	select {
	case status := <-h.done:
		// Re-deliver for any other waiter.
		h.done <- status
	case <-time.After(grace):
		_ = h.cmd.Process.Kill()
	}
}

// Kill force-kills the process immediately.
func (h *Handle) Kill() {
	if h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
	}
}

// Done returns a channel that receives the exit status once.
func (h *Handle) Done() <-chan ExitStatus {
	return h.done
}

// Pid returns the child's process ID, or 0 before start.
func (h *Handle) Pid() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

func (h *Handle) closePTY() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.ptmx.Close()
		h.closed = true
	}
}
