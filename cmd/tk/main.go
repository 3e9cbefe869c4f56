// Command tk is the timekeep CLI: a local-first worklog tracker that
// queues time entries offline and syncs them to a remote tracker.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
