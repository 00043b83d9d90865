package diagnostics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kbowden/redirtun/internal/appconfig"
	"github.com/kbowden/redirtun/internal/model"
)

func TestRun_FlagsMissingBinaries(t *testing.T) {
	cfg := appconfig.Default()
	cfg.SSHBinary = "definitely-not-a-real-binary-xyz"
	cfg.RuleDriver.Binary = "also-not-real-xyz"
	cfg.ConfigFiles = nil

	report := Run(cfg, nil)
	if !report.HasHigh() {
		t.Fatal("expected a high-severity issue for the missing binaries")
	}

	var sawSSH, sawRuleDriver bool
	for _, issue := range report.Issues {
		if issue.Check == "ssh-binary" {
			sawSSH = true
		}
		if issue.Check == "rule-driver-binary" {
			sawRuleDriver = true
		}
	}
	if !sawSSH || !sawRuleDriver {
		t.Fatalf("expected both binary checks to fire, got %+v", report.Issues)
	}
}

func TestRun_FlagsUnreadableConfigFile(t *testing.T) {
	cfg := appconfig.Default()
	cfg.SSHBinary = "sh" // present on PATH in any POSIX test environment
	cfg.RuleDriver.Binary = "sh"
	cfg.ConfigFiles = []string{filepath.Join(t.TempDir(), "missing")}

	report := Run(cfg, nil)
	var found bool
	for _, issue := range report.Issues {
		if issue.Check == "config-unreadable" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected config-unreadable issue, got %+v", report.Issues)
	}
}

func TestRun_FlagsDuplicateLocalBind(t *testing.T) {
	cfg := appconfig.Default()
	cfg.SSHBinary = "sh"
	cfg.RuleDriver.Binary = "sh"
	cfg.ConfigFiles = nil

	views := []model.SupervisorView{
		{
			Hop: "tock",
			Forwardings: []model.Forwarding{
				{Local: model.NetworkAddress{Host: "127.0.0.1", Port: 41001}, Target: model.NetworkAddress{Host: "irc.example.net", Port: 6667}},
			},
		},
		{
			Hop: "horologe",
			Forwardings: []model.Forwarding{
				{Local: model.NetworkAddress{Host: "127.0.0.1", Port: 41001}, Target: model.NetworkAddress{Host: "other.example.net", Port: 80}},
			},
		},
	}

	report := Run(cfg, views)
	var found bool
	for _, issue := range report.Issues {
		if issue.Check == "duplicate-local-bind" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected duplicate-local-bind issue, got %+v", report.Issues)
	}
}

func TestRun_CleanConfigurationHasNoIssues(t *testing.T) {
	cfg := appconfig.Default()
	cfg.SSHBinary = "sh"
	cfg.RuleDriver.Binary = "sh"

	tmp := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(tmp, []byte("Host tock\n    HostName tock.nap.com.ar\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.ConfigFiles = []string{tmp}

	report := Run(cfg, nil)
	if len(report.Issues) != 0 {
		t.Fatalf("expected no issues, got %+v", report.Issues)
	}
}
