package cli

import "fmt"

// Version is stamped at build time via -ldflags
var Version = "dev"

// VersionCmd prints version information
type VersionCmd struct{}

// Run executes the version command
func (c *VersionCmd) Run(globals *Globals) error {
	if globals.Format == "ndjson" {
		fmt.Fprintf(globals.Stdout, `{"type":"version","version":"%s"}`+"\n", Version)
		return nil
	}
	fmt.Fprintf(globals.Stdout, "nodebridge %s\n", Version)
	return nil
}
