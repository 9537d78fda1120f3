package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/vburojevic/nodebridge/internal/cli"
	"github.com/vburojevic/nodebridge/internal/config"
	"github.com/vburojevic/nodebridge/internal/endpoint"
)

const quickStart = `nodebridge - local debugger bridge for instrumented runtimes

Quick start:
  nodebridge launch node app.js                 Launch with auto-attach
  nodebridge launch --attach-mode never node app.js
  nodebridge launch -e DEBUG=1 node app.js      Override child environment

For help:
  nodebridge --help                             All commands and flags
`

func main() {
	// Show quick start if no args provided
	if len(os.Args) == 1 {
		fmt.Print(quickStart)
		return
	}

	endpoint.Init()

	// Load configuration from files/environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
		cfg = config.Default()
	}

	var c cli.CLI

	// Apply config defaults before parsing
	// These will be overridden by CLI flags if specified
	vars := kong.Vars{
		"config_format":      cfg.Format,
		"config_attach_mode": cfg.Defaults.AttachMode,
		"config_bootstrap":   cfg.Defaults.Bootstrap,
		"config_cwd":         cfg.Defaults.Cwd,
	}

	ctx := kong.Parse(&c,
		kong.Name("nodebridge"),
		kong.Description("nodebridge: launch and debug instrumented runtimes over a local endpoint"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
		vars,
	)

	// Create globals with config fallbacks
	globals := cli.NewGlobalsWithConfig(&c, cfg)
	err = ctx.Run(globals)
	if err != nil {
		os.Exit(1)
	}
}
