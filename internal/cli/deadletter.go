package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolscope/internal/ledger"
)

func init() {
	rootCmd.AddCommand(deadletterCmd)
	deadletterCmd.AddCommand(deadletterRequeueCmd)
}

var deadletterCmd = &cobra.Command{
	Use:   "deadletter",
	Short: "List dead-lettered records and their failure reasons",
	RunE:  runDeadletterList,
}

var deadletterRequeueCmd = &cobra.Command{
	Use:   "requeue <record-id>",
	Short: "Return a dead-lettered record to pending for redelivery",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeadletterRequeue,
}

func runDeadletterList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	led, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		return err
	}
	defer led.Close()

	entries, err := led.DeadLetters()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no dead-lettered records")
		return nil
	}
	out, _ := json.MarshalIndent(entries, "", "  ")
	fmt.Println(string(out))
	return nil
}

func runDeadletterRequeue(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	led, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		return err
	}
	defer led.Close()

	if err := led.Requeue(args[0]); err != nil {
		return err
	}
	fmt.Printf("requeued %s\n", args[0])
	return nil
}
