package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolscope/internal/sink"
)

var (
	sinkAddr string
	sinkDB   string
)

func init() {
	rootCmd.AddCommand(sinkCmd)
	sinkCmd.Flags().StringVar(&sinkAddr, "addr", ":8844", "Listen address")
	sinkCmd.Flags().StringVar(&sinkDB, "db", "toolscope-sink.db", "Path to sink database")
}

var sinkCmd = &cobra.Command{
	Use:   "sink",
	Short: "Run a development ingestion backend",
	Long:  "Accepts record batches on POST /v1/batches, dedupes on record_id, and\nstores accepted records in SQLite. Stands in for the real aggregation\nbackend in local setups and tests.",
	RunE:  runSink,
}

func runSink(cmd *cobra.Command, args []string) error {
	store, err := sink.OpenStore(sinkDB)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Fprintf(os.Stderr, "toolscope sink: listening on %s, storing to %s\n", sinkAddr, sinkDB)
	return sink.Serve(sinkAddr, store)
}
