package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newTrayCmd is a placeholder for the system tray application: the tray
// icon, single-instance lock, log viewer and UDP discovery beacon are a
// separate GUI surface this gateway does not implement.
func newTrayCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "tray",
		Short:  "Tray application (not implemented by this build)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("the tray application is a separate GUI surface not built into lemonade-gateway")
		},
	}
}
