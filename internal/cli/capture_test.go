package cli

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/toolscope/internal/buffer"
)

// runCaptureWith feeds payload on stdin, runs capture against the
// config at path, and returns stdout plus the command error.
func runCaptureWith(t *testing.T, configPath, payload string) (string, error) {
	t.Helper()

	oldCfg := cfgPath
	cfgPath = configPath
	defer func() { cfgPath = oldCfg }()

	inR, inW, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	oldStdin, oldStdout := os.Stdin, os.Stdout
	os.Stdin, os.Stdout = inR, outW
	defer func() { os.Stdin, os.Stdout = oldStdin, oldStdout }()

	if _, err := inW.WriteString(payload); err != nil {
		t.Fatal(err)
	}
	inW.Close()

	runErr := runCapture(captureCmd, nil)

	outW.Close()
	out, err := io.ReadAll(outR)
	if err != nil {
		t.Fatal(err)
	}
	return string(out), runErr
}

const captureEvent = `{
	"session_id": "sess-capture-test",
	"cwd": "/home/u/proj",
	"hook_event_name": "PreToolUse",
	"tool_name": "Bash",
	"tool_input": {"command": "make build"}
}`

func TestCaptureAcksAndRecordsWithBrokenConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	configPath := filepath.Join(home, "config.yaml")
	if err := os.WriteFile(configPath, []byte("{not yaml: ["), 0600); err != nil {
		t.Fatal(err)
	}

	out, runErr := runCaptureWith(t, configPath, captureEvent)

	if !strings.Contains(out, `"continue":true`) {
		t.Fatalf("no ack on stdout: %q", out)
	}
	if runErr != nil {
		t.Errorf("capture failed on a config problem: %v", runErr)
	}

	// The event was still recorded, under the default spool.
	buf, err := buffer.Open(filepath.Join(home, ".toolscope", "spool"))
	if err != nil {
		t.Fatal(err)
	}
	recs, err := buf.Session("sess-capture-test")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if recs[0].ActionDetails.Command != "make build" {
		t.Errorf("recorded command = %q", recs[0].ActionDetails.Command)
	}
}

func TestCaptureAcksBeforeStorageError(t *testing.T) {
	dir := t.TempDir()

	// spool_dir descends through a regular file, so opening the buffer
	// fails for any caller.
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(dir, "config.yaml")
	content := "spool_dir: " + filepath.Join(blocker, "spool") + "\n"
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	out, runErr := runCaptureWith(t, configPath, captureEvent)

	if !strings.Contains(out, `"continue":true`) {
		t.Fatalf("no ack on stdout: %q", out)
	}
	if runErr == nil {
		t.Error("storage failure not surfaced through the exit path")
	}
}
