package main

import (
	"strings"

	"github.com/spf13/cobra"
)

type pullFlags struct {
	checkpoint string
	recipe     string
	reasoning  bool
	vision     bool
	embedding  bool
	reranking  bool
	mmproj     string
}

func newPullCmd() *cobra.Command {
	flags := &pullFlags{}
	cmd := &cobra.Command{
		Use:   "pull MODEL",
		Short: "Download a model's checkpoint into the local cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPull(cmd, args[0], flags)
		},
	}
	cmd.Flags().StringVar(&flags.checkpoint, "checkpoint", "", "HuggingFace repo id or absolute local path")
	cmd.Flags().StringVar(&flags.recipe, "recipe", "", "recipe to register this model under (required with a local path checkpoint)")
	cmd.Flags().BoolVar(&flags.reasoning, "reasoning", false, "tag the model with the reasoning label")
	cmd.Flags().BoolVar(&flags.vision, "vision", false, "tag the model with the vision label")
	cmd.Flags().BoolVar(&flags.embedding, "embedding", false, "tag the model with the embeddings label")
	cmd.Flags().BoolVar(&flags.reranking, "reranking", false, "tag the model with the reranking label")
	cmd.Flags().StringVar(&flags.mmproj, "mmproj", "", "multi-modal projector checkpoint")
	return cmd
}

func runPull(cmd *cobra.Command, modelName string, flags *pullFlags) error {
	client := newAPIClient(clientHost, clientPort)

	body := map[string]interface{}{"model": modelName}
	if flags.checkpoint != "" {
		if strings.HasPrefix(flags.checkpoint, "/") && flags.recipe == "" {
			return errRecipeRequiredForLocalPath
		}
		body["checkpoint"] = flags.checkpoint
	}
	if flags.recipe != "" {
		body["recipe"] = flags.recipe
	}
	if flags.mmproj != "" {
		body["mmproj"] = flags.mmproj
	}
	labels := labelsFromFlags(flags)
	if len(labels) > 0 {
		body["labels"] = labels
	}

	cmd.Printf("Pulling %s...\n", modelName)
	return client.stream("POST", "/v1/pull", body, func(line string) {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			return
		}
		cmd.Println(strings.TrimPrefix(line, "data: "))
	})
}

func labelsFromFlags(flags *pullFlags) []string {
	var labels []string
	if flags.reasoning {
		labels = append(labels, "reasoning")
	}
	if flags.vision {
		labels = append(labels, "vision")
	}
	if flags.embedding {
		labels = append(labels, "embeddings")
	}
	if flags.reranking {
		labels = append(labels, "reranking")
	}
	return labels
}

var errRecipeRequiredForLocalPath = cobraUsageError("--recipe is required when --checkpoint is an absolute local path")

type cobraUsageError string

func (e cobraUsageError) Error() string { return string(e) }
