package portalloc

import (
	"net"
	"testing"

	"github.com/kbowden/redirtun/internal/model"
	"github.com/kbowden/redirtun/internal/rerr"
)

// startLoopbackHop stands in for a reachable hop: a listener that accepts
// and immediately drops connections, just like the allocator's probe needs.
func startLoopbackHop(t *testing.T) model.NetworkAddress {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	addr := ln.Addr().(*net.TCPAddr)
	return model.NetworkAddress{Host: addr.IP.String(), Port: addr.Port}
}

func TestAllocate_ReturnsUsableLocalEndpoint(t *testing.T) {
	hop := startLoopbackHop(t)

	got, err := Allocate(hop)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if got.Port <= 0 || got.Port > 65535 {
		t.Fatalf("unexpected port: %d", got.Port)
	}
	if net.ParseIP(got.Host) == nil {
		t.Fatalf("expected an IP literal, got %q", got.Host)
	}
}

func TestAllocate_HopUnreachable(t *testing.T) {
	// Nothing listens here: connection should be refused promptly.
	unreachable := model.NetworkAddress{Host: "127.0.0.1", Port: 1}

	_, err := Allocate(unreachable)
	if err == nil {
		t.Fatal("expected an error dialing an unreachable hop")
	}
	if !rerr.Of(err, rerr.HopUnreachable) {
		t.Fatalf("expected HopUnreachable, got %v", err)
	}
}
