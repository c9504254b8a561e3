package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolscope/internal/buffer"
	"github.com/ppiankov/toolscope/internal/ledger"
)

func init() {
	rootCmd.AddCommand(compactCmd)
}

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Reclaim storage for delivered records past retention",
	Long:  "Removes spool segments whose records are all acknowledged or dead-lettered\nand older than the retention window, then prunes the matching ledger rows.\nSegments holding pending records are never touched.",
	RunE:  runCompact,
}

func runCompact(cmd *cobra.Command, args []string) error {
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

	segments, err := buf.Compact(cfg.Retention.Std(), time.Now(), led.TerminalAt)
	if err != nil {
		return err
	}
	rows, err := led.Prune(cfg.Retention.Std(), time.Now())
	if err != nil {
		return err
	}

	fmt.Printf("removed %d segments, pruned %d ledger rows\n", segments, rows)
	return nil
}
