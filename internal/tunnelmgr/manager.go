// Package tunnelmgr implements the Manager: the public facade and sole
// owner of the Registry. It drives the Config Resolver, Local Port
// Allocator, and Connection Supervisor in order, reaps exited children,
// owns the signal-mask discipline around creation and removal, and fans
// out create/close notifications to registered observers.
//
// This is the package an embedder imports. It never persists runtime
// state to disk: the spec treats "the persistence format used to restore
// tunnels at startup" as the embedder's concern, not the core's.
package tunnelmgr

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kbowden/redirtun/internal/model"
	"github.com/kbowden/redirtun/internal/procguard"
	"github.com/kbowden/redirtun/internal/rerr"
	"github.com/kbowden/redirtun/internal/ruledriver"
	"github.com/kbowden/redirtun/internal/sshconfig"
	"github.com/kbowden/redirtun/internal/sshproc"
)

// DefaultReaperInterval is how often the periodic reaper tick scans the
// Registry for dead children when none is supplied to New.
const DefaultReaperInterval = time.Second

// PortAllocator is the Local Port Allocator's contract, injected so tests
// can substitute a fake without opening real sockets.
type PortAllocator func(hop model.NetworkAddress) (model.NetworkAddress, error)

// Options configures a Manager.
type Options struct {
	// ConfigFiles is the ordered list of SSH config files the Config
	// Resolver walks. Conventionally the user's file, then a system file.
	ConfigFiles []string
	// Driver installs and removes redirect rules.
	Driver ruledriver.Driver
	// Allocate obtains a local endpoint for a given hop. If nil,
	// CreateTunnel fails with HopUnreachable for any target.
	Allocate PortAllocator
	// SSHBinary is the ssh client executable Supervisors invoke.
	SSHBinary string
	// KeepAlive is the ServerAliveInterval passed to the SSH client.
	KeepAlive time.Duration
	// ReaperInterval overrides DefaultReaperInterval.
	ReaperInterval time.Duration
}

// Manager coordinates every live Supervisor.
type Manager struct {
	mu sync.Mutex

	configFiles []string
	driver      ruledriver.Driver
	allocate    PortAllocator
	sshBinary   string
	keepalive   time.Duration
	reaperEvery time.Duration

	registry      map[int]*sshproc.Supervisor
	reaperRunning bool

	createCbs []func(model.SupervisorView)
	closeCbs  []func(model.SupervisorView)
}

// New constructs a Manager. opts.Allocate must be supplied unless the
// caller only intends to exercise code paths that never call
// createTunnel with real targets (tests commonly inject a fake).
func New(opts Options) *Manager {
	reaperEvery := opts.ReaperInterval
	if reaperEvery <= 0 {
		reaperEvery = DefaultReaperInterval
	}
	return &Manager{
		configFiles: append([]string(nil), opts.ConfigFiles...),
		driver:      opts.Driver,
		allocate:    opts.Allocate,
		sshBinary:   opts.SSHBinary,
		keepalive:   opts.KeepAlive,
		reaperEvery: reaperEvery,
		registry:    make(map[int]*sshproc.Supervisor),
	}
}

// AddCreateCallback registers fn to be invoked, synchronously, after every
// successful createTunnel. Callbacks must not call back into the Manager.
func (m *Manager) AddCreateCallback(fn func(model.SupervisorView)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCbs = append(m.createCbs, fn)
}

// AddCloseCallback registers fn to be invoked, synchronously, every time a
// Supervisor transitions to Closed.
func (m *Manager) AddCloseCallback(fn func(model.SupervisorView)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCbs = append(m.closeCbs, fn)
}

// CreateTunnel resolves hopAlias, allocates a local endpoint per target,
// forks a Supervisor carrying all of them, and — only on success — records
// it in the Registry and fires the create-callbacks.
func (m *Manager) CreateTunnel(ctx context.Context, hopAlias string, targets []model.NetworkAddress) (*sshproc.Supervisor, error) {
	hop, warnings := sshconfig.ResolveWithWarnings(hopAlias, m.configFiles)
	for _, w := range warnings {
		slog.Warn("sshconfig", "warning", w)
	}

	forwardings := make([]model.Forwarding, 0, len(targets))
	for _, target := range targets {
		local, err := m.allocatePort(hop)
		if err != nil {
			return nil, err
		}
		forwardings = append(forwardings, model.Forwarding{Local: local, Target: target})
	}

	sup := sshproc.New(hopAlias, forwardings, m.driver, m.sshBinary, m.keepalive)

	section, err := procguard.Enter()
	if err != nil {
		return nil, fmt.Errorf("tunnelmgr: entering critical section: %w", err)
	}
	pid, err := sup.Connect(ctx)
	if err != nil {
		_ = section.Exit()
		return nil, err
	}
	m.mu.Lock()
	m.registry[pid] = sup
	m.ensureReaperLocked()
	m.mu.Unlock()
	if err := section.Exit(); err != nil {
		slog.Warn("tunnelmgr: exiting critical section", "error", err)
	}

	m.fireCreate(sup.Snapshot())
	return sup, nil
}

func (m *Manager) allocatePort(hop model.NetworkAddress) (model.NetworkAddress, error) {
	if m.allocate == nil {
		return model.NetworkAddress{}, rerr.New(rerr.HopUnreachable, "tunnelmgr.CreateTunnel", "no port allocator configured", nil)
	}
	return m.allocate(hop)
}

// RemoveTunnel looks up pid in the Registry. If present, it disconnects the
// Supervisor, drops it from the Registry, fires the close-callbacks, and
// returns it. The close notification is centralized in
// removeAndNotify so that both this explicit path and the reaper's
// independent discovery of a dead pid can never fire onClose twice for the
// same Supervisor.
func (m *Manager) RemoveTunnel(ctx context.Context, pid int) (*sshproc.Supervisor, bool) {
	return m.removeAndNotify(ctx, pid)
}

func (m *Manager) removeAndNotify(ctx context.Context, pid int) (*sshproc.Supervisor, bool) {
	m.mu.Lock()
	sup, ok := m.registry[pid]
	if ok {
		delete(m.registry, pid)
	}
	m.mu.Unlock()
	if !ok {
		return nil, false
	}

	section, err := procguard.Enter()
	if err != nil {
		slog.Error("tunnelmgr: entering critical section for removal", "pid", pid, "error", err)
	}
	if derr := sup.Disconnect(ctx); derr != nil {
		slog.Warn("tunnelmgr: disconnect failed", "pid", pid, "error", derr)
	}
	if section != nil {
		if err := section.Exit(); err != nil {
			slog.Warn("tunnelmgr: exiting critical section", "error", err)
		}
	}

	m.fireClose(sup.Snapshot())
	return sup, true
}

// CloseAll disconnects every Supervisor currently in the Registry.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	pids := make([]int, 0, len(m.registry))
	for pid := range m.registry {
		pids = append(pids, pid)
	}
	m.mu.Unlock()

	for _, pid := range pids {
		m.RemoveTunnel(ctx, pid)
	}
}

// WaitForAll blocks using blocking child-wait semantics until the Registry
// is empty. Intended for non-interactive hosts that can dedicate a thread
// to sleeping until every child exits, as an alternative to the periodic
// reaper.
func (m *Manager) WaitForAll(ctx context.Context) {
	for {
		m.mu.Lock()
		empty := len(m.registry) == 0
		m.mu.Unlock()
		if empty {
			return
		}

		pid, terminated, err := procguard.BlockingWaitAny()
		if err != nil {
			if err == unix.ECHILD {
				return
			}
			slog.Error("tunnelmgr: blocking wait failed", "error", err)
			continue
		}
		if !terminated {
			continue
		}

		m.mu.Lock()
		_, known := m.registry[pid]
		m.mu.Unlock()
		if known {
			m.removeAndNotify(ctx, pid)
		}
	}
}

// Snapshot returns an immutable view of every Supervisor currently in the
// Registry.
func (m *Manager) Snapshot() []model.SupervisorView {
	m.mu.Lock()
	sups := make([]*sshproc.Supervisor, 0, len(m.registry))
	for _, sup := range m.registry {
		sups = append(sups, sup)
	}
	m.mu.Unlock()

	views := make([]model.SupervisorView, 0, len(sups))
	for _, sup := range sups {
		views = append(views, sup.Snapshot())
	}
	return views
}

// ensureReaperLocked starts the periodic reaper goroutine if it is not
// already running. Must be called with m.mu held.
func (m *Manager) ensureReaperLocked() {
	if m.reaperRunning {
		return
	}
	m.reaperRunning = true
	go m.reaperLoop()
}

// reaperLoop ticks roughly once per m.reaperEvery, performing a
// non-blocking wait on every Registry entry. It deregisters itself once
// the Registry empties; a subsequent CreateTunnel re-arms it.
func (m *Manager) reaperLoop() {
	ticker := time.NewTicker(m.reaperEvery)
	defer ticker.Stop()

	ctx := context.Background()
	for range ticker.C {
		m.mu.Lock()
		pids := make([]int, 0, len(m.registry))
		for pid := range m.registry {
			pids = append(pids, pid)
		}
		m.mu.Unlock()

		for _, pid := range pids {
			terminated, err := procguard.TryWait(pid)
			if err != nil {
				slog.Warn("tunnelmgr: reaper wait4 failed", "pid", pid, "error", err)
				continue
			}
			if terminated {
				slog.Info("tunnelmgr: reaper observed unexpected child exit", "pid", pid, "kind", rerr.UnexpectedChildExit)
				m.removeAndNotify(ctx, pid)
			}
		}

		m.mu.Lock()
		empty := len(m.registry) == 0
		if empty {
			m.reaperRunning = false
		}
		m.mu.Unlock()
		if empty {
			return
		}
	}
}

func (m *Manager) fireCreate(view model.SupervisorView) {
	m.mu.Lock()
	cbs := make([]func(model.SupervisorView), len(m.createCbs))
	copy(cbs, m.createCbs)
	m.mu.Unlock()
	for _, cb := range cbs {
		cb(view)
	}
}

func (m *Manager) fireClose(view model.SupervisorView) {
	m.mu.Lock()
	cbs := make([]func(model.SupervisorView), len(m.closeCbs))
	copy(cbs, m.closeCbs)
	m.mu.Unlock()
	for _, cb := range cbs {
		cb(view)
	}
}
