package cli

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/kbowden/redirtun/internal/model"
)

func TestListCmd_ResolvesAliasesAgainstConfiguredFiles(t *testing.T) {
	setupCLIEnv(t)
	writeCLIConfigFile(t, "Host tock\n    HostName tock.nap.com.ar\n    Port 7777\n")

	cmd := NewRootCommand()
	cmd.SetArgs([]string{"list", "tock", "unknown"})
	out, err := captureStdout(func() error { return cmd.Execute() })
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "tock.nap.com.ar") || !strings.Contains(out, "7777") {
		t.Fatalf("expected resolved tock entry, got: %s", out)
	}
	if !strings.Contains(out, "unknown") {
		t.Fatalf("expected unresolved alias to still be listed, got: %s", out)
	}
}

func TestStatusCmd_JSONOutputReflectsTrackedRecords(t *testing.T) {
	setupCLIEnv(t)
	if err := appendRecord(record{
		CLIPID: os.Getpid(),
		Hop:    "tock",
		Forwardings: []model.Forwarding{
			{Local: model.NetworkAddress{Host: "127.0.0.1", Port: 41001}, Target: model.NetworkAddress{Host: "irc.example.net", Port: 6667}},
		},
	}); err != nil {
		t.Fatal(err)
	}

	cmd := NewRootCommand()
	cmd.SetArgs([]string{"status", "--json"})
	out, err := captureStdout(func() error { return cmd.Execute() })
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var recs []map[string]any
	if err := json.Unmarshal([]byte(out), &recs); err != nil {
		t.Fatalf("invalid status json: %v; output=%s", err, out)
	}
	if len(recs) != 1 || recs[0]["hop"] != "tock" {
		t.Fatalf("unexpected status records: %+v", recs)
	}
}

func TestStatusCmd_PrunesRecordsForDeadProcesses(t *testing.T) {
	setupCLIEnv(t)
	// pid 1 is always a real process (init/systemd) in any Linux
	// environment; a very large pid is exceedingly unlikely to be alive.
	if runtime.GOOS != "linux" {
		t.Skip("process-liveness pruning assumes linux pid semantics")
	}
	if err := appendRecord(record{CLIPID: 999999, Hop: "gone", Forwardings: nil}); err != nil {
		t.Fatal(err)
	}

	cmd := NewRootCommand()
	cmd.SetArgs([]string{"status"})
	out, err := captureStdout(func() error { return cmd.Execute() })
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if strings.Contains(out, "gone") {
		t.Fatalf("expected stale record to be pruned, got: %s", out)
	}
}

func TestDownCmd_UnknownPIDIsAnError(t *testing.T) {
	setupCLIEnv(t)
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"down", "424242"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error for a pid with no tracked tunnel")
	}
}

func TestDoctorCmd_JSONOutputHasIssuesKey(t *testing.T) {
	setupCLIEnv(t)
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"doctor", "--json"})
	out, err := captureStdout(func() error { return cmd.Execute() })
	if err != nil {
		t.Fatalf("doctor: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("invalid doctor json: %v; output=%s", err, out)
	}
	if _, ok := payload["issues"]; !ok {
		t.Fatalf("expected Issues key in doctor output: %s", out)
	}
}

func captureStdout(fn func() error) (string, error) {
	orig := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		return "", err
	}
	os.Stdout = w
	runErr := fn()
	_ = w.Close()
	os.Stdout = orig
	b, readErr := io.ReadAll(r)
	if readErr != nil {
		return "", readErr
	}
	return string(b), runErr
}

func setupCLIEnv(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func writeCLIConfigFile(t *testing.T, body string) {
	t.Helper()
	dir, err := runtimeFilePath()
	if err != nil {
		t.Fatal(err)
	}
	cfgDir := filepath.Dir(dir)
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "hosts")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfgPath := filepath.Join(cfgDir, "config.yaml")
	content := "config_files:\n  - " + path + "\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
