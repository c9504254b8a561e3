package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolscope/internal/config"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "toolscope",
	Short: "Security telemetry pipeline for AI coding agents",
	Long:  "Captures every agent tool invocation as a tamper-evident telemetry record,\nflags out-of-scope file access, buffers durably on the local host, and ships\nreliably to an aggregation backend. Observation only: toolscope never vetoes\na tool action.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath(), "Path to config file")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the active configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgPath)
}
