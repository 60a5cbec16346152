package main

import "github.com/spf13/cobra"

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Evict every loaded model and shut the gateway down",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(clientHost, clientPort)
			if err := client.do("POST", "/internal/shutdown", nil, nil); err != nil {
				return err
			}
			cmd.Println("Gateway stopped.")
			return nil
		},
	}
}
