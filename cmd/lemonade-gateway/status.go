package main

import (
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"
)

type statsResponse struct {
	Loaded bool `json:"loaded"`
	Model  struct {
		ModelName string `json:"model_name"`
		Recipe    string `json:"recipe"`
		Device    int    `json:"device"`
	} `json:"model"`
	TokensPerSecond float64 `json:"tokens_per_second"`
}

func secondsToDuration(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }

type systemStatsResponse struct {
	UptimeSeconds float64       `json:"uptime_seconds"`
	LoadedModels  []interface{} `json:"loaded_models"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the gateway's uptime and currently loaded models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(clientHost, clientPort)

			var sysStats systemStatsResponse
			if err := client.do("GET", "/v1/system-stats", nil, &sysStats); err != nil {
				return err
			}
			cmd.Printf("Uptime:        %s\n", units.HumanDuration(secondsToDuration(sysStats.UptimeSeconds)))
			cmd.Printf("Loaded models: %d\n", len(sysStats.LoadedModels))

			var stats statsResponse
			if err := client.do("GET", "/v1/stats", nil, &stats); err == nil && stats.Loaded {
				cmd.Printf("Most recent:   %s (%s), %.1f tok/s\n", stats.Model.ModelName, stats.Model.Recipe, stats.TokensPerSecond)
			}
			return nil
		},
	}
}
