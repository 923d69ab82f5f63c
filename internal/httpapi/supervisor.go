package httpapi

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"starling/internal/logging"
)

// Supervisor owns the engine subprocess the control API starts and stops.
// The subprocess and this process share the sqlite ledger, so drafts and
// counters written by either side are visible to both.
type Supervisor struct {
	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}

	binary string
	args   []string
	grace  time.Duration
}

// NewSupervisor prepares a supervisor that runs binary with args.
func NewSupervisor(binary string, args ...string) *Supervisor {
	return &Supervisor{binary: binary, args: args, grace: 10 * time.Second}
}

// Start spawns the subprocess. When it is already running, Start reports
// the live pid with started=false.
func (s *Supervisor) Start() (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alive() {
		return s.cmd.Process.Pid, false, nil
	}
	cmd := exec.Command(s.binary, s.args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return 0, false, fmt.Errorf("start engine: %w", err)
	}
	done := make(chan struct{})
	s.cmd = cmd
	s.done = done
	pid := cmd.Process.Pid
	go func() {
		err := cmd.Wait()
		if err != nil {
			logging.Warn("engine_exit", map[string]any{"pid": pid, "error": err.Error()})
		} else {
			logging.Info("engine_exit", map[string]any{"pid": pid})
		}
		close(done)
	}()
	logging.Info("engine_start", map[string]any{"pid": pid})
	return pid, true, nil
}

// Stop sends SIGTERM and waits for exit, escalating to SIGKILL after the
// grace period. Stopping an idle supervisor is a no-op.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive() {
		return nil
	}
	pid := s.cmd.Process.Pid
	if err := s.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal engine: %w", err)
	}
	select {
	case <-s.done:
	case <-time.After(s.grace):
		logging.Warn("engine_kill", map[string]any{"pid": pid})
		_ = s.cmd.Process.Kill()
		<-s.done
	case <-ctx.Done():
		return ctx.Err()
	}
	logging.Info("engine_stop", map[string]any{"pid": pid})
	return nil
}

// Running reports whether the subprocess is alive, and its pid.
func (s *Supervisor) Running() (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alive() {
		return true, s.cmd.Process.Pid
	}
	return false, 0
}

// alive must be called with mu held.
func (s *Supervisor) alive() bool {
	if s.cmd == nil || s.cmd.Process == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}
