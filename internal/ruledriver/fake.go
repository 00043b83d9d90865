package ruledriver

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbowden/redirtun/internal/model"
	"github.com/kbowden/redirtun/internal/rerr"
)

// Fake is an in-memory Driver for tests that exercise the Connection
// Supervisor and Manager without touching real kernel rule state.
type Fake struct {
	mu sync.Mutex

	// FailInstallAt, if non-zero, makes the N-th Install call (1-indexed,
	// across the Fake's lifetime) fail instead of succeeding.
	FailInstallAt int

	installed   map[string]model.Forwarding
	installCall int
}

func NewFake() *Fake {
	return &Fake{installed: map[string]model.Forwarding{}}
}

func key(local, target model.NetworkAddress) string {
	return fmt.Sprintf("%s->%s", local, target)
}

func (f *Fake) Install(_ context.Context, local, target model.NetworkAddress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.installCall++
	if f.FailInstallAt != 0 && f.installCall == f.FailInstallAt {
		return rerr.New(rerr.RuleInstallFailed, "ruledriver.Fake.Install", "injected failure", nil)
	}
	f.installed[key(local, target)] = model.Forwarding{Local: local, Target: target}
	return nil
}

func (f *Fake) Remove(_ context.Context, local, target model.NetworkAddress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.installed, key(local, target))
	return nil
}

// Installed returns a snapshot of every currently installed rule.
func (f *Fake) Installed() []model.Forwarding {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Forwarding, 0, len(f.installed))
	for _, fw := range f.installed {
		out = append(out, fw)
	}
	return out
}

// Count returns how many rules are currently installed.
func (f *Fake) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.installed)
}
