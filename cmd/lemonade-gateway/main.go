// Command lemonade-gateway runs the local inference gateway server and
// provides a thin CLI for pulling, listing and inspecting models against a
// running instance.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
