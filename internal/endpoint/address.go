// Package endpoint names and binds the per-session local transport endpoint
// the instrumented runtime dials back to.
package endpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
)

// counter disambiguates endpoints created by one host process. Initialized
// explicitly at process start via Init.
var counter atomic.Uint64

// Init resets the endpoint counter. Call once at process start.
func Init() {
	counter.Store(0)
}

// NextAddress returns a fresh endpoint address, unique across sessions
// running concurrently on this host. The address combines the host process
// id with a per-process counter, so two sessions never collide and a
// restart never reuses an address the OS may still be releasing.
func NextAddress() string {
	return addressFor(runtime.GOOS, os.Getpid(), counter.Add(1))
}

// addressFor builds the platform-appropriate local channel address: a named
// pipe on Windows (reserved pipe namespace), a filesystem socket under the
// temp directory elsewhere.
func addressFor(goos string, pid int, n uint64) string {
	name := fmt.Sprintf("nodebridge-%d-%d", pid, n)
	if goos == "windows" {
		return `\\.\pipe\` + name
	}
	return filepath.Join(os.TempDir(), name+".sock")
}
