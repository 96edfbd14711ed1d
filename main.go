package main

import (
	"fmt"
	"os"

	"github.com/northbeam/portal-api/app"
)

func main() {
	// setup and run app
	if err := app.SetupAndRunServer(); err != nil {
		fmt.Fprintln(os.Stderr, "portal-api:", err)
		os.Exit(1)
	}
}
