//go:build linux

package procguard

import "golang.org/x/sys/unix"

// TryWait performs a non-blocking wait4 on pid. terminated is true only if
// the process actually exited or was killed by a signal — a traced stop or
// continue is reported as not terminated so the reaper leaves it alone.
func TryWait(pid int) (terminated bool, err error) {
	var status unix.WaitStatus
	wpid, err := unix.Wait4(pid, &status, unix.WNOHANG, nil)
	if err != nil {
		return false, err
	}
	if wpid == 0 {
		return false, nil
	}
	return status.Exited() || status.Signaled(), nil
}

// BlockingWaitAny blocks until any child changes state, returning its pid
// and whether that change was an actual termination (as opposed to a
// trace stop/continue).
func BlockingWaitAny() (pid int, terminated bool, err error) {
	var status unix.WaitStatus
	wpid, err := unix.Wait4(-1, &status, 0, nil)
	if err != nil {
		return 0, false, err
	}
	return wpid, status.Exited() || status.Signaled(), nil
}

// ReapPID blocks until pid is reaped, retrying across interrupted system
// calls. It is used on the Connection Supervisor's rollback path, where
// the child was killed before ever being registered with the Manager and
// so will never be observed by the Manager's own reaper.
func ReapPID(pid int) error {
	var status unix.WaitStatus
	for {
		_, err := unix.Wait4(pid, &status, 0, nil)
		if err == nil || err == unix.ECHILD {
			return nil
		}
		if err != unix.EINTR {
			return err
		}
	}
}
