// toolscope is the security telemetry pipeline for AI coding agents.
// Captures tool invocations via agent hooks, buffers them durably, and
// ships them to an aggregation backend.
package main

import "github.com/ppiankov/toolscope/internal/cli"

func main() {
	cli.Execute()
}
