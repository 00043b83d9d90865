//go:build linux

package procguard

import (
	"os/exec"
	"testing"
)

func TestEnterExit_RestoresMask(t *testing.T) {
	sec, err := Enter()
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}
	if err := sec.Exit(); err != nil {
		t.Fatalf("Exit: %v", err)
	}
}

func TestTryWaitAndBlockingWaitAny(t *testing.T) {
	cmd := exec.Command("true")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start test child: %v", err)
	}
	pid := cmd.Process.Pid

	pid2, terminated, err := BlockingWaitAny()
	if err != nil {
		t.Fatalf("BlockingWaitAny: %v", err)
	}
	if pid2 != pid {
		t.Fatalf("expected pid %d, got %d", pid, pid2)
	}
	if !terminated {
		t.Fatalf("expected the child to be reported as terminated")
	}

	// The process is already reaped: a further TryWait must report an
	// error (ECHILD), never a false terminated=true.
	if _, err := TryWait(pid); err == nil {
		t.Fatalf("expected wait4 on an already-reaped pid to fail")
	}
}
