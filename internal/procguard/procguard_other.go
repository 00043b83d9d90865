//go:build !linux

package procguard

import "errors"

// ErrUnsupportedPlatform is returned by every operation outside Linux. The
// signal-mask critical section and PID-based reaping this package
// implements are POSIX/Linux process-model concepts; the redirection
// manager's process supervision targets Linux, matching the Rule Driver's
// iptables dependency.
var ErrUnsupportedPlatform = errors.New("procguard: not implemented for this platform")

type Section struct{}

func Enter() (*Section, error) { return nil, ErrUnsupportedPlatform }

func (s *Section) Exit() error { return ErrUnsupportedPlatform }

func TryWait(pid int) (terminated bool, err error) { return false, ErrUnsupportedPlatform }

func BlockingWaitAny() (pid int, terminated bool, err error) { return 0, false, ErrUnsupportedPlatform }

func ReapPID(pid int) error { return ErrUnsupportedPlatform }
