// Command oipa is the entry point for the Ebttikar OIP assistant.
// It provides the ingestion CLI and the HTTP API server that powers the
// operations intelligence chat experience.
package main

import (
	"fmt"
	"os"

	"github.com/ebttikar/oip-assistant/cmd/oipa/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
