package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lemonade-sdk/lemonade-gateway/internal/logging"
)

var (
	verbose    bool
	logJSON    bool
	clientHost string
	clientPort int

	log logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "lemonade-gateway",
	Short: "Local inference gateway multiplexing OpenAI-compatible requests across model backends",
	Long: `lemonade-gateway is a local inference gateway that exposes an
OpenAI-compatible HTTP API and dispatches requests to heterogeneous
model-serving child processes (llama.cpp, whisper.cpp, kokoro, stable
diffusion, FLM, RyzenAI) on demand.

Example:
  lemonade-gateway serve
  lemonade-gateway run Qwen2.5-7B-Instruct-GGUF`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}
		level := "info"
		if verbose {
			level = "debug"
		}
		if env := os.Getenv("LEMONADE_LOG_LEVEL"); env != "" {
			level = env
		}
		if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
			level = f.Value.String()
		}
		log = logging.New(level)
		if logJSON {
			l := logrus.New()
			l.SetFormatter(&logrus.JSONFormatter{})
			log = logging.NewFromLogrus(l)
			logging.SetLevel(log, level)
		}
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "output logs in JSON format")
	rootCmd.PersistentFlags().StringVar(&clientHost, "client-host", "localhost", "host of the gateway server for CLI client commands")
	rootCmd.PersistentFlags().IntVar(&clientPort, "client-port", 8000, "port of the gateway server for CLI client commands")

	rootCmd.AddCommand(
		newServeCmd(),
		newRunCmd(),
		newPullCmd(),
		newListCmd(),
		newDeleteCmd(),
		newStatusCmd(),
		newStopCmd(),
		newRecipesCmd(),
		newTrayCmd(),
	)
}
