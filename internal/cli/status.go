package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolscope/internal/buffer"
	"github.com/ppiankov/toolscope/internal/ledger"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show buffer and delivery counters",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	buf, err := buffer.Open(cfg.SpoolDir)
	if err != nil {
		return err
	}
	st, err := buf.Stat()
	if err != nil {
		return err
	}

	led, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		return err
	}
	defer led.Close()

	counts, err := led.Counts()
	if err != nil {
		return err
	}

	out := map[string]any{
		"sessions":      st.Sessions,
		"records":       st.Records,
		"spool_bytes":   st.SpoolBytes,
		"pending":       counts[ledger.StatePending],
		"in_flight":     counts[ledger.StateInFlight],
		"acknowledged":  counts[ledger.StateAcked],
		"dead_lettered": counts[ledger.StateDeadLettered],
	}
	data, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(data))
	return nil
}
