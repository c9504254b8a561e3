package ledger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func mustState(t *testing.T, l *Ledger, id string, want State) {
	t.Helper()
	s, err := l.StateOf(id)
	if err != nil {
		t.Fatal(err)
	}
	if s != want {
		t.Errorf("state of %s = %s, want %s", id, s, want)
	}
}

func TestAbsentRowIsPending(t *testing.T) {
	l := newTestLedger(t)
	mustState(t, l, "s1:000001", StatePending)
	if !l.Deliverable("s1:000001") {
		t.Error("untracked record should be deliverable")
	}
}

func TestLifecycleTransitions(t *testing.T) {
	l := newTestLedger(t)
	const id = "s1:000001"

	if err := l.Track(id, "s1"); err != nil {
		t.Fatal(err)
	}
	mustState(t, l, id, StatePending)

	if err := l.MarkInFlight([]string{id}); err != nil {
		t.Fatal(err)
	}
	mustState(t, l, id, StateInFlight)

	if err := l.MarkAcked(id); err != nil {
		t.Fatal(err)
	}
	mustState(t, l, id, StateAcked)
	if l.Deliverable(id) {
		t.Error("acknowledged record must not be deliverable")
	}
}

func TestTerminalStatesDoNotRegress(t *testing.T) {
	l := newTestLedger(t)

	// Re-ack and late failure on an acknowledged row are both no-ops.
	l.Track("a", "s1")
	if err := l.MarkAcked("a"); err != nil {
		t.Fatal(err)
	}
	if err := l.MarkAcked("a"); err != nil {
		t.Errorf("second ack must be a silent no-op: %v", err)
	}
	if err := l.MarkDeadLettered("a", "too late"); err != nil {
		t.Fatal(err)
	}
	mustState(t, l, "a", StateAcked)
	if err := l.MarkPending("a"); err != nil {
		t.Fatal(err)
	}
	mustState(t, l, "a", StateAcked)

	// Dead-lettered rows keep their first verdict too.
	l.Track("d", "s1")
	if err := l.MarkDeadLettered("d", "first reason"); err != nil {
		t.Fatal(err)
	}
	if err := l.MarkAcked("d"); err != nil {
		t.Fatal(err)
	}
	mustState(t, l, "d", StateDeadLettered)

	letters, err := l.DeadLetters()
	if err != nil {
		t.Fatal(err)
	}
	if len(letters) != 1 || letters[0].Reason != "first reason" {
		t.Errorf("dead letters = %+v", letters)
	}
}

func TestInFlightRevertsOnReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	l1, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	l1.Track("s1:000001", "s1")
	l1.MarkInFlight([]string{"s1:000001"})
	if err := l1.Close(); err != nil {
		t.Fatal(err)
	}

	// Shipper crashed mid-batch. The next run must re-own the record.
	l2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l2.Close()
	mustState(t, l2, "s1:000001", StatePending)
	if !l2.Deliverable("s1:000001") {
		t.Error("reverted record should be deliverable again")
	}
}

func TestTrackLeavesExistingRows(t *testing.T) {
	l := newTestLedger(t)
	l.Track("a", "s1")
	l.MarkAcked("a")

	// A re-drain of an already delivered record must not reset it.
	if err := l.Track("a", "s1"); err != nil {
		t.Fatal(err)
	}
	mustState(t, l, "a", StateAcked)
}

func TestAttemptCounter(t *testing.T) {
	l := newTestLedger(t)
	l.Track("a", "s1")
	for want := 1; want <= 3; want++ {
		n, err := l.IncAttempts("a")
		if err != nil {
			t.Fatal(err)
		}
		if n != want {
			t.Errorf("attempts = %d, want %d", n, want)
		}
	}
}

func TestRequeue(t *testing.T) {
	l := newTestLedger(t)
	l.Track("a", "s1")
	l.IncAttempts("a")
	l.MarkDeadLettered("a", "backend rejected")

	if err := l.Requeue("a"); err != nil {
		t.Fatal(err)
	}
	mustState(t, l, "a", StatePending)
	n, err := l.IncAttempts("a")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("requeue did not reset attempts: %d", n)
	}

	// Only dead-lettered rows can be requeued.
	l.Track("b", "s1")
	err = l.Requeue("b")
	if err == nil || !strings.Contains(err.Error(), "not dead-lettered") {
		t.Errorf("requeue of pending row: err = %v", err)
	}
}

func TestCounts(t *testing.T) {
	l := newTestLedger(t)
	l.Track("a", "s1")
	l.Track("b", "s1")
	l.Track("c", "s2")
	l.MarkAcked("b")
	l.MarkDeadLettered("c", "rejected")

	counts, err := l.Counts()
	if err != nil {
		t.Fatal(err)
	}
	want := map[State]int{StatePending: 1, StateAcked: 1, StateDeadLettered: 1}
	for s, n := range want {
		if counts[s] != n {
			t.Errorf("counts[%s] = %d, want %d", s, counts[s], n)
		}
	}
}

func TestPruneRemovesOldTerminalRows(t *testing.T) {
	l := newTestLedger(t)
	l.Track("old-acked", "s1")
	l.MarkAcked("old-acked")
	l.Track("pending", "s1")

	// Old enough that every terminal row falls past the cutoff.
	future := time.Now().Add(48 * time.Hour)
	n, err := l.Prune(24*time.Hour, future)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("pruned %d rows, want 1", n)
	}

	// Pending rows are never pruned regardless of age.
	counts, _ := l.Counts()
	if counts[StatePending] != 1 {
		t.Error("prune removed a pending row")
	}

	// Inside the window: nothing removed.
	l.Track("fresh", "s1")
	l.MarkAcked("fresh")
	n, err = l.Prune(24*time.Hour, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("pruned %d fresh rows", n)
	}
}

func TestDeliverableReportsLookupFailure(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	l.Track("a", "s1")
	l.Close()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	oldStderr := os.Stderr
	os.Stderr = w
	deliverable := l.Deliverable("a")
	os.Stderr = oldStderr
	w.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}

	if deliverable {
		t.Error("unreadable ledger reported record as deliverable")
	}
	if !strings.Contains(string(out), "ledger:") {
		t.Errorf("lookup failure not reported on stderr: %q", out)
	}
}

func TestTerminalAt(t *testing.T) {
	l := newTestLedger(t)
	l.Track("a", "s1")

	if _, ok := l.TerminalAt("a"); ok {
		t.Error("pending row reported terminal")
	}

	before := time.Now().Add(-time.Second)
	l.MarkAcked("a")
	at, ok := l.TerminalAt("a")
	if !ok {
		t.Fatal("acknowledged row not reported terminal")
	}
	if at.Before(before) || at.After(time.Now().Add(time.Second)) {
		t.Errorf("terminal time %v out of range", at)
	}
}
