//go:build windows

package endpoint

import (
	"net"

	"github.com/Microsoft/go-winio"
)

// Listen binds the local endpoint at addr in the named pipe namespace.
func Listen(addr string) (net.Listener, error) {
	return winio.ListenPipe(addr, nil)
}
