package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/vburojevic/nodebridge/internal/domain"
	"github.com/vburojevic/nodebridge/internal/output"
	"github.com/vburojevic/nodebridge/internal/pathmap"
	"github.com/vburojevic/nodebridge/internal/session"
	"github.com/vburojevic/nodebridge/internal/thread"
)

// LaunchCmd launches a program with the instrumentation environment and
// streams the discovered target tree
type LaunchCmd struct {
	Program    string   `arg:"" help:"Program to launch"`
	Args       []string `arg:"" optional:"" passthrough:"" help:"Program arguments"`
	Cwd        string   `short:"C" default:"${config_cwd}" help:"Working directory for the launched program"`
	Env        []string `short:"e" help:"Environment override (KEY=VALUE, can be repeated)"`
	AttachMode string   `enum:"never,always,top-level" default:"${config_attach_mode}" help:"Whether spawned runtimes wait for the debugger"`
	Bootstrap  string   `default:"${config_bootstrap}" help:"Path to the instrumentation bootstrap module"`
}

// treeEvent is the forest snapshot streamed after every tree mutation
type treeEvent struct {
	Type          string             `json:"type"` // "tree"
	SchemaVersion int                `json:"schemaVersion"`
	Roots         []session.NodeView `json:"roots"`
}

// outputEvent carries a chunk of the supervised process's output
type outputEvent struct {
	Type          string `json:"type"` // "output"
	SchemaVersion int    `json:"schemaVersion"`
	Data          string `json:"data"`
}

// Run executes the launch command
func (c *LaunchCmd) Run(globals *Globals) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	overrides, err := mergeEnvOverrides(globals.DefaultEnv, c.Env)
	if err != nil {
		return outputErrorCommon(globals, "INVALID_ENV", err.Error())
	}

	ndjson := globals.Format == "ndjson"
	var writer *output.NDJSONWriter
	if ndjson {
		writer = output.NewNDJSONWriter(globals.Stdout)
	}

	var sink io.Writer = globals.Stdout
	if ndjson {
		sink = writerFunc(func(b []byte) (int, error) {
			if err := writer.Write(outputEvent{Type: "output", SchemaVersion: 1, Data: string(b)}); err != nil {
				return 0, err
			}
			return len(b), nil
		})
	}

	log := globals.logger.Zap()
	var mgr *session.Manager
	ended := make(chan struct{})
	opts := session.Options{
		Log:        log,
		Threads:    thread.NewFactory(log),
		OutputSink: sink,
		Resolver:   pathmap.New(c.Cwd),
		OnTreeChanged: func() {
			if ndjson {
				writer.Write(treeEvent{Type: "tree", SchemaVersion: 1, Roots: mgr.Tree()})
			} else if !globals.Quiet {
				printTree(globals.Stderr, mgr.Tree(), 0)
			}
		},
		OnSessionEnded: func() {
			if ndjson {
				writer.Write(domain.NewProcessExit(false))
			} else if !globals.Quiet {
				fmt.Fprintln(globals.Stderr, "Process exited")
			}
			close(ended)
		},
	}
	if ndjson {
		opts.OnTargetCreated = func(ev *domain.TargetCreated) { writer.Write(ev) }
		opts.OnTargetDestroyed = func(ev *domain.TargetDestroyed) { writer.Write(ev) }
		opts.OnAttachChanged = func(ev *domain.AttachChanged) { writer.Write(ev) }
	}
	mgr = session.NewManager(opts)

	globals.Debug("Launching %s (cwd=%s, attach=%s)", c.Program, c.Cwd, c.AttachMode)
	err = mgr.Launch(ctx, session.LaunchParams{
		Command:       append([]string{c.Program}, c.Args...),
		Cwd:           c.Cwd,
		Env:           overrides,
		AttachMode:    domain.ParseAttachMode(c.AttachMode),
		BootstrapPath: c.Bootstrap,
	})
	if err != nil {
		return outputErrorCommon(globals, "LAUNCH_FAILED", err.Error())
	}

	if !globals.Quiet && !ndjson {
		fmt.Fprintf(globals.Stderr, "Listening on %s\n", mgr.EndpointAddress())
		fmt.Fprintln(globals.Stderr, "Press Ctrl+C to stop")
	}

	select {
	case <-ctx.Done():
		return mgr.Terminate(context.Background())
	case <-ended:
		return nil
	}
}

func printTree(w io.Writer, nodes []session.NodeView, depth int) {
	for _, n := range nodes {
		state := "detached"
		if n.Attached {
			state = "attached"
		}
		fmt.Fprintf(w, "%s%s (%s) [%s]\n", strings.Repeat("  ", depth), n.Name, n.ID, state)
		printTree(w, n.Children, depth+1)
	}
}

// mergeEnvOverrides layers -e flag values over the config file's env
// defaults; a flag wins over a config entry for the same key.
func mergeEnvOverrides(defaults map[string]string, flags []string) (map[string]string, error) {
	merged := make(map[string]string, len(defaults)+len(flags))
	for k, v := range defaults {
		merged[k] = v
	}
	for _, kv := range flags {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("expected KEY=VALUE, got %q", kv)
		}
		merged[k] = v
	}
	return merged, nil
}

// writerFunc adapts a function to io.Writer
type writerFunc func(b []byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) { return f(b) }
