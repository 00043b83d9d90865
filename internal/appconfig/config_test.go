package appconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_DefaultValues(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SSHBinary != "ssh" {
		t.Fatalf("unexpected ssh binary: %s", cfg.SSHBinary)
	}
	if cfg.RuleDriver.Binary != "iptables" || cfg.RuleDriver.Table != "nat" || cfg.RuleDriver.Chain != "OUTPUT" {
		t.Fatalf("unexpected rule driver config: %+v", cfg.RuleDriver)
	}
	if cfg.ReaperIntervalSeconds != 1 {
		t.Fatalf("unexpected reaper interval: %d", cfg.ReaperIntervalSeconds)
	}
	if cfg.KeepAliveSeconds != 300 {
		t.Fatalf("unexpected keepalive: %d", cfg.KeepAliveSeconds)
	}
}

func TestLoad_PartialFileFillsInDefaults(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	dir := filepath.Join(xdg, "redirtun")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	content := []byte("ssh_binary: /usr/bin/ssh\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SSHBinary != "/usr/bin/ssh" {
		t.Fatalf("expected configured ssh binary preserved, got %s", cfg.SSHBinary)
	}
	if cfg.RuleDriver.Binary != "iptables" {
		t.Fatalf("expected default rule driver binary filled in, got %s", cfg.RuleDriver.Binary)
	}
	if cfg.ReaperIntervalSeconds != 1 {
		t.Fatalf("expected default reaper interval filled in, got %d", cfg.ReaperIntervalSeconds)
	}
}

func TestLoad_CreatesFileOnFirstRun(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	if _, err := Load(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(xdg, "redirtun", "config.yaml")); err != nil {
		t.Fatalf("expected config.yaml to be created on first run: %v", err)
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	if cfg.ReaperInterval().Seconds() != 1 {
		t.Fatalf("unexpected reaper interval duration: %v", cfg.ReaperInterval())
	}
	if cfg.KeepAlive().Seconds() != 300 {
		t.Fatalf("unexpected keepalive duration: %v", cfg.KeepAlive())
	}
}
