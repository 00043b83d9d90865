// Package sshproc implements the Connection Supervisor: it owns a single
// SSH client process carrying N local forwardings, the rules installed for
// them, and the New -> Active -> Closed state machine described by the
// spec.
//
// This package never speaks the SSH wire protocol itself — it shells out
// to the system's ssh binary so the user's existing keys, agent, and
// ProxyJump configuration keep working unmodified.
package sshproc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/kbowden/redirtun/internal/model"
	"github.com/kbowden/redirtun/internal/netutil"
	"github.com/kbowden/redirtun/internal/procguard"
	"github.com/kbowden/redirtun/internal/rerr"
	"github.com/kbowden/redirtun/internal/ruledriver"
)

// KeepAliveInterval is the suggested ServerAliveInterval passed to ssh so a
// dead hop is detected rather than hanging the forwardings forever.
const KeepAliveInterval = 300 * time.Second

// Supervisor owns one SSH child process and the Forwardings it carries.
// The zero value is not useful; construct with New.
type Supervisor struct {
	mu sync.Mutex

	hop         string
	forwardings []model.Forwarding
	driver      ruledriver.Driver
	sshBinary   string
	keepalive   time.Duration

	state model.State
	pid   int
	cmd   *exec.Cmd
}

// New constructs a Supervisor in state New. sshBinary is looked up via
// PATH if not an absolute path; an empty value defaults to "ssh".
func New(hop string, forwardings []model.Forwarding, driver ruledriver.Driver, sshBinary string, keepalive time.Duration) *Supervisor {
	if sshBinary == "" {
		sshBinary = "ssh"
	}
	if keepalive <= 0 {
		keepalive = KeepAliveInterval
	}
	return &Supervisor{
		hop:         hop,
		forwardings: append([]model.Forwarding(nil), forwardings...),
		driver:      driver,
		sshBinary:   sshBinary,
		keepalive:   keepalive,
		state:       model.StateNew,
	}
}

// BuildArgs constructs the ssh argv for hop carrying forwardings, without
// starting a process. Exposed for dry-run display and for testing argument
// composition independently of process execution.
func BuildArgs(hop string, forwardings []model.Forwarding, keepalive time.Duration) []string {
	if keepalive <= 0 {
		keepalive = KeepAliveInterval
	}
	args := make([]string, 0, len(forwardings)*2+6)
	for _, f := range forwardings {
		args = append(args, "-L", fmt.Sprintf("%s:%d:%s:%d",
			f.Local.Host, f.Local.Port, f.Target.Host, f.Target.Port))
	}
	args = append(args,
		"-N", // no remote command
		"-T", // no pseudo-tty
		"-a", // no agent forwarding
		"-o", "ServerAliveInterval="+strconv.Itoa(int(keepalive.Seconds())),
		hop,
	)
	return args
}

// Connect forks the SSH client and installs a rule per Forwarding. It must
// be called exactly once, while the Supervisor is in state New.
func (s *Supervisor) Connect(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != model.StateNew {
		return 0, fmt.Errorf("sshproc: Connect called in state %s, want new", s.state)
	}
	for _, f := range s.forwardings {
		if err := netutil.ValidatePort(f.Local.Port); err != nil {
			return 0, fmt.Errorf("sshproc: local %w", err)
		}
		if err := netutil.ValidatePort(f.Target.Port); err != nil {
			return 0, fmt.Errorf("sshproc: target %w", err)
		}
	}

	args := BuildArgs(s.hop, s.forwardings, s.keepalive)
	cmd := exec.Command(s.sshBinary, args...)
	cmd.Stdin = nil
	cmd.Stdout = io.Discard
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 0, rerr.New(rerr.ForkFailed, "sshproc.Connect", "could not attach stderr", err)
	}

	if err := cmd.Start(); err != nil {
		return 0, rerr.New(rerr.ForkFailed, "sshproc.Connect", "could not start ssh client", err)
	}
	pid := cmd.Process.Pid
	go drainStderr(s.hop, stderr)

	for i, f := range s.forwardings {
		if err := s.driver.Install(ctx, f.Local, f.Target); err != nil {
			s.rollback(ctx, cmd, pid, i)
			return 0, err
		}
	}

	s.cmd = cmd
	s.pid = pid
	s.state = model.StateActive
	slog.Info("supervisor connected", "hop", s.hop, "pid", pid, "forwardings", len(s.forwardings))
	return pid, nil
}

// rollback tears down the first installedCount rules in reverse order,
// kills and reaps the child, and leaves the Supervisor in state Closed.
// Called with s.mu already held.
func (s *Supervisor) rollback(ctx context.Context, cmd *exec.Cmd, pid, installedCount int) {
	for i := installedCount - 1; i >= 0; i-- {
		f := s.forwardings[i]
		if err := s.driver.Remove(ctx, f.Local, f.Target); err != nil {
			slog.Warn("rollback: rule removal failed", "hop", s.hop, "error", err)
		}
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	if err := procguard.ReapPID(pid); err != nil {
		slog.Warn("rollback: reap failed", "hop", s.hop, "pid", pid, "error", err)
	}
	s.state = model.StateClosed
	slog.Error("supervisor create rolled back", "hop", s.hop, "pid", pid)
}

// Disconnect sends SIGTERM to the child and removes every installed rule.
// Legal only from state Active; idempotent once Closed.
func (s *Supervisor) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == model.StateClosed {
		return nil
	}
	if s.state != model.StateActive {
		return fmt.Errorf("sshproc: Disconnect called in state %s, want active", s.state)
	}

	if s.cmd != nil && s.cmd.Process != nil {
		if err := s.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			slog.Warn("disconnect: signal failed", "hop", s.hop, "pid", s.pid, "error", err)
		}
	}
	for _, f := range s.forwardings {
		if err := s.driver.Remove(ctx, f.Local, f.Target); err != nil {
			slog.Warn("disconnect: rule removal failed", "hop", s.hop, "error", err)
		}
	}
	s.state = model.StateClosed
	slog.Info("supervisor disconnected", "hop", s.hop, "pid", s.pid)
	return nil
}

// Snapshot returns an immutable view of the Supervisor's identifying
// fields and current state, safe to hand to callbacks and diagnostics.
func (s *Supervisor) Snapshot() model.SupervisorView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.SupervisorView{
		Hop:         s.hop,
		PID:         s.pid,
		Forwardings: append([]model.Forwarding(nil), s.forwardings...),
		State:       s.state,
	}
}

// PID returns the child PID, or 0 if the Supervisor never reached Active.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pid
}

// KillForTest sends SIGKILL directly to the child without touching state
// or removing installed rules, simulating the hop dying out from under the
// Supervisor so reaper-discovery tests can be exercised deterministically.
func (s *Supervisor) KillForTest() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return fmt.Errorf("sshproc: KillForTest called before Connect")
	}
	return s.cmd.Process.Signal(syscall.SIGKILL)
}

func drainStderr(hop string, r io.ReadCloser) {
	defer r.Close()
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			slog.Debug("ssh stderr", "hop", hop, "output", string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}
