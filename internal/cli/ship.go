package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolscope/internal/buffer"
	"github.com/ppiankov/toolscope/internal/config"
	"github.com/ppiankov/toolscope/internal/ledger"
	"github.com/ppiankov/toolscope/internal/redact"
	"github.com/ppiankov/toolscope/internal/shipper"
	"github.com/ppiankov/toolscope/internal/systemd"
)

var shipOnce bool

func init() {
	rootCmd.AddCommand(shipCmd)
	shipCmd.Flags().BoolVar(&shipOnce, "once", false, "Drain one cycle and exit")
}

var shipCmd = &cobra.Command{
	Use:   "ship",
	Short: "Run the shipping daemon",
	Long:  "Drains the durable buffer and forwards record batches to the ingestion\nendpoint. Runs until interrupted; --once performs a single drain cycle,\nfor cron-style scheduling.",
	RunE:  runShip,
}

func runShip(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if warning := systemd.CheckUnitFileIntegrity(config.DefaultDir()); warning != "" {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
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

	ship := shipper.New(buf, led, shipper.NewClient(cfg.Endpoint, cfg.APIKey), shipper.Config{
		BatchSize:   cfg.BatchSize,
		Interval:    cfg.DrainInterval.Std(),
		MaxAttempts: cfg.MaxAttempts,
		BackoffBase: cfg.BackoffBase.Std(),
		BackoffCap:  cfg.BackoffCap.Std(),
		Redact:      redact.ParseMode(cfg.Redact),
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if shipOnce {
		acked, err := ship.ShipOnce(ctx)
		if err != nil {
			return fmt.Errorf("ship once: %w", err)
		}
		fmt.Printf("acknowledged %d records\n", acked)
		return nil
	}

	// Reclaim terminal segments and ledger rows in the background while
	// the daemon runs.
	go runCompactSweeper(ctx, buf, led, cfg.Retention.Std())

	fmt.Fprintf(os.Stderr, "toolscope: shipping to %s (batch %d, interval %s)\n", cfg.Endpoint, cfg.BatchSize, cfg.DrainInterval.Std())
	return ship.Run(ctx)
}

// compactInterval is how often the sweeper reclaims terminal records.
const compactInterval = time.Hour

func runCompactSweeper(ctx context.Context, buf *buffer.Buffer, led *ledger.Ledger, retention time.Duration) {
	ticker := time.NewTicker(compactInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep(buf, led, retention)
		}
	}
}

// sweep reclaims terminal segments and ledger rows. Rows prune
// independently of segment removal: a mixed segment pins its file, but
// its terminal rows still age out (a later re-drain of a pruned record
// re-tracks and the backend answers duplicate).
func sweep(buf *buffer.Buffer, led *ledger.Ledger, retention time.Duration) {
	now := time.Now()
	n, err := buf.Compact(retention, now, led.TerminalAt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "toolscope: compact sweep: %v\n", err)
	} else if n > 0 {
		fmt.Fprintf(os.Stderr, "toolscope: compacted %d segments\n", n)
	}
	if _, err := led.Prune(retention, now); err != nil {
		fmt.Fprintf(os.Stderr, "toolscope: ledger prune: %v\n", err)
	}
}
