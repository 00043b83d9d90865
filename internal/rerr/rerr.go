// Package rerr classifies the error kinds raised by the redirection
// manager's components: a caller-safe summary kept apart from verbose
// debug detail, tagged with a stable Kind so callers can branch on
// failure class with errors.As instead of string matching.
package rerr

import (
	"errors"
	"fmt"
)

// Kind identifies which documented failure class an Error belongs to.
type Kind string

const (
	// ConfigUnreadable means an SSH config file could not be opened
	// (missing, permission denied). Non-fatal to resolve(); logged and
	// skipped.
	ConfigUnreadable Kind = "config_unreadable"
	// ConfigMalformed means a line or directive could not be parsed.
	// Non-fatal; the offending key is treated as absent.
	ConfigMalformed Kind = "config_malformed"
	// HopUnreachable means the Local Port Allocator could not connect to
	// the resolved hop address to probe a local port.
	HopUnreachable Kind = "hop_unreachable"
	// WrongAddressFamily means the probed local address was neither IPv4
	// nor IPv6.
	WrongAddressFamily Kind = "wrong_address_family"
	// ForkFailed means starting the SSH client process failed.
	ForkFailed Kind = "fork_failed"
	// RuleInstallFailed means the Rule Driver could not install a
	// redirect rule.
	RuleInstallFailed Kind = "rule_install_failed"
	// RuleRemoveFailed means the Rule Driver could not remove a
	// previously installed rule. Non-fatal; logged.
	RuleRemoveFailed Kind = "rule_remove_failed"
	// UnexpectedChildExit means the reaper observed a Supervisor's child
	// exit without an explicit disconnect having been requested.
	UnexpectedChildExit Kind = "unexpected_child_exit"
)

// Error pairs a Kind with a caller-safe summary and the underlying cause.
type Error struct {
	Kind  Kind
	Op    string
	Safe  string
	Cause error
}

func New(kind Kind, op, safe string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Safe: safe, Cause: cause}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Safe, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Safe)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether target is an *Error carrying the same Kind, so callers
// can write errors.Is(err, rerr.New(rerr.HopUnreachable, "", "", nil)) — or,
// more conveniently, use Of below.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) || other == nil {
		return false
	}
	return other.Kind == e.Kind
}

// Of reports whether err (or something it wraps) is an *Error of the given
// Kind.
func Of(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
