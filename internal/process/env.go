package process

import (
	"sort"
	"strings"

	"github.com/vburojevic/nodebridge/internal/domain"
)

// Reserved environment variables consumed by the instrumentation bootstrap
// injected into the spawned runtime.
const (
	EnvEndpoint        = "INSPECTOR_IPC"
	EnvWaitForDebugger = "INSPECTOR_WAIT_FOR_DEBUGGER"

	envNodeOptions       = "NODE_OPTIONS"
	envElectronRunAsNode = "ELECTRON_RUN_AS_NODE"
)

// EnvOptions parameterizes the reserved keys set by BuildEnv.
type EnvOptions struct {
	EndpointAddress string
	AttachMode      domain.AttachMode
	BootstrapPath   string
}

// BuildEnv constructs the child process environment: ambient variables
// first, then caller overrides, then the reserved keys unconditionally.
// The loader directive is appended to any pre-existing NODE_OPTIONS value,
// never replacing it. ELECTRON_RUN_AS_NODE is removed last; it makes the
// child misidentify its runtime host, and the deletion must win over
// overrides that could reintroduce it.
func BuildEnv(ambient []string, overrides map[string]string, opts EnvOptions) []string {
	env := make(map[string]string, len(ambient)+len(overrides)+3)
	for _, kv := range ambient {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	for k, v := range overrides {
		env[k] = v
	}

	env[EnvEndpoint] = opts.EndpointAddress
	mode := opts.AttachMode
	if mode == "" {
		mode = domain.AttachNever
	}
	env[EnvWaitForDebugger] = string(mode)

	loader := "--require " + opts.BootstrapPath
	if prev := env[envNodeOptions]; prev != "" {
		env[envNodeOptions] = prev + " " + loader
	} else {
		env[envNodeOptions] = loader
	}

	delete(env, envElectronRunAsNode)

	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
