//go:build !windows

package endpoint

import (
	"net"
	"os"
)

// Listen binds the local endpoint at addr. A stale socket file from a
// crashed prior run is removed before binding.
func Listen(addr string) (net.Listener, error) {
	_ = os.Remove(addr)
	return net.Listen("unix", addr)
}
