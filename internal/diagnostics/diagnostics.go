// Package diagnostics implements the redirection manager's preflight
// checks: read-only checks that describe what is wrong without changing
// anything.
package diagnostics

import (
	"fmt"
	"os/exec"
	"sort"

	"github.com/kbowden/redirtun/internal/appconfig"
	"github.com/kbowden/redirtun/internal/model"
	"github.com/kbowden/redirtun/internal/sshconfig"
)

// Severity ranks an Issue for display and sorting.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Issue describes one diagnostic finding.
type Issue struct {
	Severity       Severity `json:"severity"`
	Check          string   `json:"check"`
	Target         string   `json:"target"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

// Report is the sorted result of Run.
type Report struct {
	Issues []Issue `json:"issues"`
}

// HasHigh reports whether r contains any high-severity issue.
func (r Report) HasHigh() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityHigh {
			return true
		}
	}
	return false
}

// Run executes every preflight check against cfg and the currently live
// Supervisors in views, changing nothing.
func Run(cfg appconfig.Config, views []model.SupervisorView) Report {
	var issues []Issue

	issues = append(issues, checkBinaryOnPath("ssh-binary", cfg.SSHBinary, "ssh",
		"install an OpenSSH client and ensure it is on PATH")...)
	issues = append(issues, checkBinaryOnPath("rule-driver-binary", cfg.RuleDriver.Binary, "iptables",
		"install iptables and ensure it is on PATH")...)

	for _, w := range sshconfig.ProbeFiles(cfg.ConfigFiles) {
		issues = append(issues, Issue{
			Severity:       SeverityMedium,
			Check:          "config-unreadable",
			Target:         "ssh config",
			Message:        w,
			Recommendation: "fix or remove the unreadable config file from config_files",
		})
	}

	issues = append(issues, duplicateLocalPortIssues(views)...)

	sort.Slice(issues, func(i, j int) bool {
		ri, rj := severityRank(issues[i].Severity), severityRank(issues[j].Severity)
		if ri != rj {
			return ri > rj
		}
		if issues[i].Check != issues[j].Check {
			return issues[i].Check < issues[j].Check
		}
		return issues[i].Target < issues[j].Target
	})
	return Report{Issues: issues}
}

func checkBinaryOnPath(check, binary, defaultBinary, recommendation string) []Issue {
	if binary == "" {
		binary = defaultBinary
	}
	if _, err := exec.LookPath(binary); err != nil {
		return []Issue{{
			Severity:       SeverityHigh,
			Check:          check,
			Target:         binary,
			Message:        err.Error(),
			Recommendation: recommendation,
		}}
	}
	return nil
}

// duplicateLocalPortIssues flags any local endpoint requested by more than
// one Forwarding across every live Supervisor — a collision the Local
// Port Allocator's dial-then-inspect strategy should have prevented, but
// is worth surfacing if it somehow occurred (e.g. two Managers sharing a
// host without coordination).
func duplicateLocalPortIssues(views []model.SupervisorView) []Issue {
	seen := map[string][]string{}
	for _, v := range views {
		for _, f := range v.Forwardings {
			key := f.Local.String()
			seen[key] = append(seen[key], v.Hop)
		}
	}
	var issues []Issue
	for local, hops := range seen {
		if len(hops) < 2 {
			continue
		}
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "duplicate-local-bind",
			Target:         local,
			Message:        fmt.Sprintf("local endpoint is claimed by %d forwardings", len(hops)),
			Recommendation: "remove the conflicting tunnel before starting another on the same local endpoint",
		})
	}
	return issues
}

func severityRank(s Severity) int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}
