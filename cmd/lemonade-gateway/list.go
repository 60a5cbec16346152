package main

import (
	"text/tabwriter"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"
)

type modelInfoView struct {
	ModelName  string  `json:"model_name"`
	Recipe     string  `json:"recipe"`
	Type       string  `json:"type"`
	SizeGB     float64 `json:"size_gb"`
	Downloaded bool    `json:"downloaded"`
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every model in the visible catalogue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(clientHost, clientPort)
			var resp struct {
				Data []modelInfoView `json:"data"`
			}
			if err := client.do("GET", "/v1/models", nil, &resp); err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer tw.Flush()
			tw.Write([]byte("MODEL\tRECIPE\tTYPE\tSIZE\tDOWNLOADED\n"))
			for _, m := range resp.Data {
				downloaded := "no"
				if m.Downloaded {
					downloaded = "yes"
				}
				size := ""
				if m.SizeGB > 0 {
					size = units.HumanSize(m.SizeGB * (1 << 30))
				}
				tw.Write([]byte(m.ModelName + "\t" + m.Recipe + "\t" + m.Type + "\t" + size + "\t" + downloaded + "\n"))
			}
			return nil
		},
	}
}
