// Package portalloc implements the Local Port Allocator: it obtains a local
// TCP endpoint the operating system considers free for a subsequent
// outbound session toward a given hop, by actually dialing the hop and
// reading back the socket's local address.
package portalloc

import (
	"context"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kbowden/redirtun/internal/model"
	"github.com/kbowden/redirtun/internal/rerr"
)

// ProbeTimeout bounds how long the allocator waits for the hop to accept
// the probing connection before declaring it unreachable.
const ProbeTimeout = 10 * time.Second

// Allocate opens a TCP socket with address reuse enabled, connects it to
// hop, and returns the socket's local address before closing it. The
// returned port is available at the moment of return; no retry is
// performed if something else claims it before the SSH client binds it —
// that race is accepted per the documented contract.
func Allocate(hop model.NetworkAddress) (model.NetworkAddress, error) {
	dialer := net.Dialer{
		Timeout: ProbeTimeout,
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	conn, err := dialer.DialContext(context.Background(), "tcp", hop.String())
	if err != nil {
		return model.NetworkAddress{}, rerr.New(rerr.HopUnreachable, "portalloc.Allocate", "hop unreachable", err)
	}
	defer conn.Close()

	local, ok := conn.LocalAddr().(*net.TCPAddr)
	if !ok {
		return model.NetworkAddress{}, rerr.New(rerr.WrongAddressFamily, "portalloc.Allocate", "local address is not TCP", nil)
	}
	if local.IP.To4() == nil && local.IP.To16() == nil {
		return model.NetworkAddress{}, rerr.New(rerr.WrongAddressFamily, "portalloc.Allocate", "local address is neither IPv4 nor IPv6", nil)
	}

	return model.NetworkAddress{Host: local.IP.String(), Port: local.Port}, nil
}
