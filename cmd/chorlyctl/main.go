// Command chorlyctl runs chorly's batch jobs once from the command line.
package main

import (
	"os"

	"github.com/dukerupert/chorly/cmd/chorlyctl/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
