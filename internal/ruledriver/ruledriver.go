// Package ruledriver implements the Rule Driver: it installs and removes
// the kernel packet-rewrite rule that maps traffic destined for
// target.host:target.port onto a Forwarding's local endpoint. Actual rule
// manipulation is issued through an external privileged tool (iptables on
// Linux); this package never speaks netlink or manipulates kernel state
// directly.
package ruledriver

import (
	"context"

	"github.com/kbowden/redirtun/internal/model"
)

// Driver installs and removes redirect rules. Both operations are
// synchronous; the caller observes success or failure before proceeding.
type Driver interface {
	// Install adds a rule redirecting traffic bound for target onto
	// local.Port. A non-nil error means no rule was installed.
	Install(ctx context.Context, local, target model.NetworkAddress) error
	// Remove deletes the exact rule installed by a prior Install call with
	// the same (local, target) pair. Removal targets the specific
	// five-tuple so it never disables a different Supervisor's identical
	// target.
	Remove(ctx context.Context, local, target model.NetworkAddress) error
}
