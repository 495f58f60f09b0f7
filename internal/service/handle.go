package service

import (
	"io"
	"os/exec"
	"sync"
	"time"
)

// Handle owns one spawned service process. It is created by the Launcher and
// killed at most once; reaping happens on a background goroutine so the child
// never zombies.
type Handle struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	writers []io.WriteCloser
	done    chan struct{}
	exitErr error
}

func newHandle(cmd *exec.Cmd, writers ...io.WriteCloser) *Handle {
	h := &Handle{cmd: cmd, done: make(chan struct{})}
	for _, w := range writers {
		if w != nil {
			h.writers = append(h.writers, w)
		}
	}
	go h.reap()
	return h
}

// PID returns the OS process id of the child.
func (h *Handle) PID() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cmd == nil || h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// reap waits for the child to exit and closes the captured stdio writers.
func (h *Handle) reap() {
	err := h.cmd.Wait()
	h.mu.Lock()
	h.exitErr = err
	writers := h.writers
	h.writers = nil
	h.mu.Unlock()
	for _, w := range writers {
		_ = w.Close()
	}
	close(h.done)
}

// Kill force-terminates the process group and waits briefly for the reaper.
func (h *Handle) Kill() error {
	pid := h.PID()
	if pid == 0 {
		return nil
	}
	_ = killGroup(pid)
	select {
	case <-h.done:
	case <-time.After(200 * time.Millisecond):
		// best-effort
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

// Exited reports whether the child has been reaped.
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// HandleSlot is the optional, exclusively-owned handle slot of one service.
// Take atomically removes and returns the handle so the monitor's respawn
// path and an explicit stop can never kill the same handle twice.
type HandleSlot struct {
	mu sync.Mutex
	h  *Handle
}

// Put stores a new handle and returns the previous one, if any. At most one
// non-nil handle exists per service at any time.
func (s *HandleSlot) Put(h *Handle) *Handle {
	s.mu.Lock()
	prev := s.h
	s.h = h
	s.mu.Unlock()
	return prev
}

// Take removes and returns the handle; subsequent calls return nil until the
// next Put.
func (s *HandleSlot) Take() *Handle {
	s.mu.Lock()
	h := s.h
	s.h = nil
	s.mu.Unlock()
	return h
}

// Peek returns the current handle without transferring ownership.
func (s *HandleSlot) Peek() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h
}
