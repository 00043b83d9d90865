//go:build !linux

package ruledriver

import (
	"context"
	"errors"

	"github.com/kbowden/redirtun/internal/model"
)

// ErrUnsupportedPlatform is returned by every operation outside Linux.
// Kernel packet rewriting is inherently OS-specific, and this module
// implements only the Linux NAT rule shape described by the spec.
var ErrUnsupportedPlatform = errors.New("ruledriver: no rule driver implemented for this platform")

// IPTables is a stub on non-Linux platforms; it exists so callers can build
// against the same package without platform-specific conditionals of their
// own.
type IPTables struct {
	Binary string
}

func NewIPTables(binary string) *IPTables {
	return &IPTables{Binary: binary}
}

func (d *IPTables) Install(ctx context.Context, local, target model.NetworkAddress) error {
	return ErrUnsupportedPlatform
}

func (d *IPTables) Remove(ctx context.Context, local, target model.NetworkAddress) error {
	return ErrUnsupportedPlatform
}
