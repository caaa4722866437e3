// ./main.go
package main

import (
	"context"
	"os"

	"github.com/xkilldash9x/pilot-cli/cmd"
)

// main is the plain entry point for the Pilot CLI. The signal aware variant
// with graceful shutdown lives in cmd/pilot.
func main() {
	if err := cmd.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}
