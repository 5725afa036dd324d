// Command minide drives the workspace core without a window: it prints
// explorer trees, creates the sample workspace and manages the recent
// workspace list shared with the desktop app.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "minide:", err)
		os.Exit(1)
	}
}
