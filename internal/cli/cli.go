// Package cli defines the nodebridge command surface.
package cli

import (
	"io"
	"os"

	"github.com/vburojevic/nodebridge/internal/config"
)

// CLI is the root command model parsed by kong
type CLI struct {
	Format  string `help:"Output format (ndjson, text)" enum:"ndjson,text" default:"${config_format}"`
	Quiet   bool   `short:"q" help:"Suppress non-essential output"`
	Verbose bool   `short:"v" help:"Verbose debug logging"`

	Launch  LaunchCmd  `cmd:"" help:"Launch a program under the debugger bridge"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// Globals carries shared state into command Run methods
type Globals struct {
	Format  string
	Quiet   bool
	Verbose bool
	Stdout  io.Writer
	Stderr  io.Writer

	// DefaultEnv holds child-environment overrides from the config file,
	// applied under any -e flags.
	DefaultEnv map[string]string

	logger *bridgeLogger
}

// NewGlobalsWithConfig creates Globals, letting CLI flags override config
// file values
func NewGlobalsWithConfig(c *CLI, cfg *config.Config) *Globals {
	g := &Globals{
		Format:     c.Format,
		Quiet:      c.Quiet || cfg.Quiet,
		Verbose:    c.Verbose || cfg.Verbose,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		DefaultEnv: cfg.Defaults.Env,
	}
	g.logger = newBridgeLogger(g)
	return g
}

// Debug logs a verbose debug message when --verbose is set
func (g *Globals) Debug(format string, args ...interface{}) {
	g.logger.Debug(format, args...)
}
