// Command statumd serves statum engines over HTTP and inspects schematic
// files.
//
// Usage:
//
//	statumd serve                     # serve engines, configured by STATUM_* variables
//	statumd schematic validate FILE   # check a YAML schematic
//	statumd schematic dot FILE        # render a YAML schematic as Graphviz
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "statumd:", err)
		stop()
		os.Exit(1)
	}
}
