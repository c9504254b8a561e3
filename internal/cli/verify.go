package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolscope/internal/buffer"
)

func init() {
	rootCmd.AddCommand(verifyCmd)
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify hash chain integrity of every spool segment",
	Long:  "Walks each per-session segment and validates that every record's prev_hash\nmatches the SHA-256 of the previous line and that sequence numbers are\ncontiguous. Exits 0 if all chains are intact, 1 if any segment is tampered.",
	RunE:  runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	buf, err := buffer.Open(cfg.SpoolDir)
	if err != nil {
		return err
	}
	results, err := buf.Verify()
	if err != nil {
		return err
	}

	tampered := false
	for _, res := range results {
		name := filepath.Base(res.Segment)
		if res.Valid {
			fmt.Printf("OK: %s (%d records)\n", name, res.Records)
			continue
		}
		tampered = true
		fmt.Fprintf(os.Stderr, "FAILED: %s line %d: %s\n", name, res.ErrorLine, res.Error)
	}
	if tampered {
		os.Exit(1)
	}
	return nil
}
