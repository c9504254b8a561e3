package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolscope/internal/buffer"
	"github.com/ppiankov/toolscope/internal/config"
	"github.com/ppiankov/toolscope/internal/hook"
	"github.com/ppiankov/toolscope/internal/record"
	"github.com/ppiankov/toolscope/internal/scope"
)

// maxHookPayload bounds how much of the hook payload is read. Oversized
// input is truncated, never a crash.
const maxHookPayload = 10 << 20

func init() {
	rootCmd.AddCommand(captureCmd)
}

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture one tool invocation (hook entry point)",
	Long:  "Reads a single hook event from stdin, appends a telemetry record to the\ndurable buffer, and prints the acknowledgment. This is the latency-sensitive\npath: it touches only local storage, never the network.\n\nThe ack always lets the tool action proceed. A storage failure is reported\non stderr and through the exit code, but the ack is still printed first.",
	RunE:  runCapture,
}

func runCapture(cmd *cobra.Command, args []string) error {
	// The ack goes out regardless of anything that fails below, config
	// loading included: capture errors must never block the underlying
	// tool action.
	defer func() {
		fmt.Println(string(hook.Acknowledge()))
	}()

	cfg, err := loadConfig()
	if err != nil {
		// A broken config file must not cost the event. Record with the
		// defaults and report the parse failure on stderr.
		fmt.Fprintf(os.Stderr, "toolscope: %v (using defaults)\n", err)
		cfg = config.Default()
	}

	payload, err := io.ReadAll(io.LimitReader(os.Stdin, maxHookPayload))
	if err != nil {
		payload = nil
	}

	// Decode tolerantly: garbled input still yields exactly one record.
	ev, decodeErr := hook.Decode(payload)
	if decodeErr != nil {
		fmt.Fprintf(os.Stderr, "toolscope: %v (recording fallback event)\n", decodeErr)
	}

	outside := scope.Outside(ev.Cwd, scope.RefPath(ev.ToolInput))

	builder := record.NewBuilder(record.Caps{
		DetailBytes: cfg.DetailBytes,
		RawBytes:    cfg.RawBytes,
	})
	rec := builder.Build(ev, outside, time.Now())

	buf, err := buffer.Open(cfg.SpoolDir)
	if err != nil {
		return err
	}
	if _, err := buf.Append(rec); err != nil {
		return err
	}
	return nil
}
