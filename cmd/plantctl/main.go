// Command plantctl runs catalogue maintenance jobs from the shell: reconciling
// derived fields, identifying a folder of photos, listing and exporting the
// catalogue, and serving the catalogue over MCP.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
