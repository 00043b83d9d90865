package tunnelmgr

import (
	"github.com/kbowden/redirtun/internal/model"
	"github.com/kbowden/redirtun/internal/rerr"
)

// Re-exported so embedders of this package need only one import to build
// a target list, inspect a Supervisor's state, and branch on error Kind.

type NetworkAddress = model.NetworkAddress
type Forwarding = model.Forwarding
type SupervisorView = model.SupervisorView
type State = model.State

type Kind = rerr.Kind

const (
	ConfigUnreadable    = rerr.ConfigUnreadable
	ConfigMalformed     = rerr.ConfigMalformed
	HopUnreachable      = rerr.HopUnreachable
	WrongAddressFamily  = rerr.WrongAddressFamily
	ForkFailed          = rerr.ForkFailed
	RuleInstallFailed   = rerr.RuleInstallFailed
	RuleRemoveFailed    = rerr.RuleRemoveFailed
	UnexpectedChildExit = rerr.UnexpectedChildExit
)

// ErrorOfKind reports whether err is a redirtun error of the given Kind.
func ErrorOfKind(err error, kind Kind) bool {
	return rerr.Of(err, kind)
}
