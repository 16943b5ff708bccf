// Command ledgerctl is the operator CLI for the posting core.
package main

import (
	"fmt"
	"os"

	"github.com/livestatement/backend/internal/interfaces/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
