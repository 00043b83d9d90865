//go:build linux

package ruledriver

import (
	"context"
	"os/exec"
	"strconv"

	"github.com/kbowden/redirtun/internal/model"
	"github.com/kbowden/redirtun/internal/netutil"
	"github.com/kbowden/redirtun/internal/rerr"
)

// IPTables issues NAT-table OUTPUT-chain REDIRECT rules via the iptables
// binary: exec.Command("iptables", ...).CombinedOutput() against the
// built-in OUTPUT chain of the nat table, with no netfilter library linked
// in.
type IPTables struct {
	// Binary is the iptables executable to invoke, resolved via PATH if
	// not an absolute path. Defaults to "iptables".
	Binary string
}

// NewIPTables returns a Driver backed by binary, or "iptables" if binary is
// empty.
func NewIPTables(binary string) *IPTables {
	if binary == "" {
		binary = "iptables"
	}
	return &IPTables{Binary: binary}
}

func (d *IPTables) Install(ctx context.Context, local, target model.NetworkAddress) error {
	if err := validatePorts(local, target); err != nil {
		return rerr.New(rerr.RuleInstallFailed, "ruledriver.Install", err.Error(), err)
	}
	args := ruleArgs("-A", local, target)
	if out, err := exec.CommandContext(ctx, d.Binary, args...).CombinedOutput(); err != nil {
		return rerr.New(rerr.RuleInstallFailed, "ruledriver.Install", string(out), err)
	}
	return nil
}

func (d *IPTables) Remove(ctx context.Context, local, target model.NetworkAddress) error {
	if err := validatePorts(local, target); err != nil {
		return rerr.New(rerr.RuleRemoveFailed, "ruledriver.Remove", err.Error(), err)
	}
	args := ruleArgs("-D", local, target)
	if out, err := exec.CommandContext(ctx, d.Binary, args...).CombinedOutput(); err != nil {
		return rerr.New(rerr.RuleRemoveFailed, "ruledriver.Remove", string(out), err)
	}
	return nil
}

func validatePorts(local, target model.NetworkAddress) error {
	if err := netutil.ValidatePort(local.Port); err != nil {
		return err
	}
	return netutil.ValidatePort(target.Port)
}

// ruleArgs builds the exact five-tuple match required so that -D removes
// only the rule -A installed for this (local, target) pair, never a
// different Supervisor's rule for the same target.
func ruleArgs(action string, local, target model.NetworkAddress) []string {
	return []string{
		"-t", "nat",
		action, "OUTPUT",
		"-p", "tcp",
		"-d", target.Host,
		"--dport", strconv.Itoa(target.Port),
		"-j", "REDIRECT",
		"--to-port", strconv.Itoa(local.Port),
	}
}
