// Package main provides the entry point for the specflow CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/felixgeelhaar/specflow/interfaces/cli"
)

func main() {
	app := cli.New()

	if err := app.Execute(context.Background()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
