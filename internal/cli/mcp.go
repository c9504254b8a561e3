package cli

import (
	"github.com/spf13/cobra"

	"github.com/ppiankov/toolscope/internal/buffer"
	"github.com/ppiankov/toolscope/internal/ledger"
	"github.com/ppiankov/toolscope/internal/mcp"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve read-only pipeline introspection over MCP stdio",
	Long:  "Exposes telemetry_status and session_records tools so an agent or operator\ncan inspect what has been captured and what is still owed delivery.\nObservation only: no tool mutates pipeline state.",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	buf, err := buffer.Open(cfg.SpoolDir)
	if err != nil {
		return err
	}
	led, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		return err
	}
	defer led.Close()

	return mcp.New(buf, led).Run(cmd.Context())
}
