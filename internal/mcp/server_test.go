package mcp

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/ppiankov/toolscope/internal/buffer"
	"github.com/ppiankov/toolscope/internal/ledger"
	"github.com/ppiankov/toolscope/internal/record"
)

func newTestServer(t *testing.T) (*Server, *buffer.Buffer, *ledger.Ledger) {
	t.Helper()
	dir := t.TempDir()
	buf, err := buffer.Open(filepath.Join(dir, "spool"))
	if err != nil {
		t.Fatal(err)
	}
	led, err := ledger.Open(filepath.Join(dir, "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { led.Close() })
	return New(buf, led), buf, led
}

func appendRecords(t *testing.T, buf *buffer.Buffer, session string, n int) []string {
	t.Helper()
	var ids []string
	for i := 0; i < n; i++ {
		id, err := buf.Append(&record.Record{
			Timestamp: fmt.Sprintf("2026-08-30T10:00:%02d.000Z", i),
			SessionID: session,
			ToolName:  "Bash",
			EventType: "tool_usage",
		})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	return ids
}

func TestStatusTool(t *testing.T) {
	s, buf, led := newTestServer(t)
	ids := appendRecords(t, buf, "s1", 3)
	appendRecords(t, buf, "s2", 1)

	led.Track(ids[0], "s1")
	led.MarkAcked(ids[0])
	led.Track(ids[1], "s1")
	led.MarkDeadLettered(ids[1], "rejected")

	_, out, err := s.handleStatus(context.Background(), nil, StatusInput{})
	if err != nil {
		t.Fatal(err)
	}
	if out.Sessions != 2 || out.Records != 4 {
		t.Errorf("sessions/records = %d/%d", out.Sessions, out.Records)
	}
	if out.Acknowledged != 1 || out.DeadLettered != 1 {
		t.Errorf("acked/dead = %d/%d", out.Acknowledged, out.DeadLettered)
	}
	if out.SpoolBytes == 0 {
		t.Error("spool bytes not reported")
	}
}

func TestSessionRecordsTool(t *testing.T) {
	s, buf, _ := newTestServer(t)
	appendRecords(t, buf, "s1", 30)

	// Default limit returns the most recent tail.
	_, out, err := s.handleSessionRecords(context.Background(), nil, SessionRecordsInput{SessionID: "s1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Records) != 20 {
		t.Fatalf("got %d records, want 20", len(out.Records))
	}
	if out.Records[len(out.Records)-1].Seq != 30 {
		t.Errorf("tail ends at seq %d, want 30", out.Records[len(out.Records)-1].Seq)
	}

	_, out, err = s.handleSessionRecords(context.Background(), nil, SessionRecordsInput{SessionID: "s1", Limit: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Records) != 5 || out.Records[0].Seq != 26 {
		t.Errorf("limited tail = %d records starting at seq %d", len(out.Records), out.Records[0].Seq)
	}

	// Unknown session: empty, not an error.
	_, out, err = s.handleSessionRecords(context.Background(), nil, SessionRecordsInput{SessionID: "nope"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Records) != 0 {
		t.Errorf("unknown session returned %d records", len(out.Records))
	}
}
