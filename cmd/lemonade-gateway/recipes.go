package main

import (
	"strings"

	"github.com/spf13/cobra"
)

type recipeSupportView struct {
	Supported           bool     `json:"supported"`
	Available           bool     `json:"available"`
	Backends            []string `json:"supported_backends_in_preference_order"`
	ReasonIfUnsupported string   `json:"reason_if_unsupported,omitempty"`
}

func newRecipesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recipes",
		Short: "Show which backend recipes this system supports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(clientHost, clientPort)
			var info struct {
				Recipes map[string]recipeSupportView `json:"recipes"`
			}
			if err := client.do("GET", "/v1/system-info", nil, &info); err != nil {
				return err
			}
			for recipe, support := range info.Recipes {
				status := "unsupported"
				switch {
				case support.Supported && support.Available:
					status = "ready"
				case support.Supported:
					status = "supported, not yet installed"
				}
				line := recipe + ": " + status
				if len(support.Backends) > 0 {
					line += " (" + strings.Join(support.Backends, ", ") + ")"
				}
				if support.ReasonIfUnsupported != "" {
					line += " - " + support.ReasonIfUnsupported
				}
				cmd.Println(line)
			}
			return nil
		},
	}
}
