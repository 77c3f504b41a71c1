package main

import (
	"github.com/spf13/cobra"
)

// Version is set via -ldflags.
var Version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "statumd",
		Short: "Persistent finite state machines over HTTP",
		Long: `statumd hosts statum state engines behind the statum remote protocol.

Engines for string and int state/input types are served from a single
storage backend selected with STATUM_BACKEND (memory, sqlite, postgres,
redis or mongo). Settings may also be read from a .env file.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newSchematicCmd())
	return root
}
