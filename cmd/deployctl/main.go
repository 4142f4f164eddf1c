// Command deployctl is the CLI Front-End (§4.13): a thin cobra wrapper
// that translates deploy/redeploy/scale/decommission subcommands into
// POSTs against the orchestrator's /v1/chat/completions endpoint.
package main

import (
	"os"

	"deployforge/cmd/deployctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
