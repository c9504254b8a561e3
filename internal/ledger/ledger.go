// Package ledger tracks delivery state per record id: pending,
// in-flight, acknowledged, or dead-lettered. The ledger is owned by the
// shipping side; the capture path never opens it, so appends stay flat
// under contention. A record with no row is pending by definition;
// rows materialize on first drain.
package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite"
)

// State is a delivery ledger state.
type State string

const (
	StatePending      State = "pending"
	StateInFlight     State = "in_flight"
	StateAcked        State = "acknowledged"
	StateDeadLettered State = "dead_lettered"
)

// Terminal reports whether a state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateAcked || s == StateDeadLettered
}

// Entry is one ledger row.
type Entry struct {
	RecordID  string    `json:"record_id"`
	SessionID string    `json:"session_id"`
	State     State     `json:"state"`
	Attempts  int       `json:"attempts"`
	Reason    string    `json:"reason,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ledger is a SQLite-backed delivery ledger.
type Ledger struct {
	db *sql.DB
}

// Open opens (or creates) the ledger. Any row left in_flight by a
// previous shipper run reverts to pending. Delivery is at-least-once,
// so re-sending after a crash is safe.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: enable WAL: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS deliveries (
		record_id  TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		state      TEXT NOT NULL,
		attempts   INTEGER NOT NULL DEFAULT 0,
		reason     TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: init schema: %w", err)
	}

	if _, err := db.Exec(
		`UPDATE deliveries SET state = ?, updated_at = ? WHERE state = ?`,
		StatePending, timestamp(time.Now()), StateInFlight,
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: revert in-flight rows: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Close releases the database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Track materializes a pending row for a drained record. Existing rows
// are left untouched.
func (l *Ledger) Track(recordID, sessionID string) error {
	_, err := l.db.Exec(
		`INSERT OR IGNORE INTO deliveries (record_id, session_id, state, updated_at) VALUES (?, ?, ?, ?)`,
		recordID, sessionID, StatePending, timestamp(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("ledger: track %s: %w", recordID, err)
	}
	return nil
}

// MarkInFlight moves pending rows to in_flight. Terminal rows are never
// touched.
func (l *Ledger) MarkInFlight(recordIDs []string) error {
	for _, id := range recordIDs {
		_, err := l.db.Exec(
			`UPDATE deliveries SET state = ?, updated_at = ? WHERE record_id = ? AND state = ?`,
			StateInFlight, timestamp(time.Now()), id, StatePending,
		)
		if err != nil {
			return fmt.Errorf("ledger: mark in-flight %s: %w", id, err)
		}
	}
	return nil
}

// MarkPending returns a non-terminal row to pending (transport failure:
// the batch will be retried, never skipped).
func (l *Ledger) MarkPending(recordID string) error {
	_, err := l.db.Exec(
		`UPDATE deliveries SET state = ?, updated_at = ? WHERE record_id = ? AND state NOT IN (?, ?)`,
		StatePending, timestamp(time.Now()), recordID, StateAcked, StateDeadLettered,
	)
	if err != nil {
		return fmt.Errorf("ledger: mark pending %s: %w", recordID, err)
	}
	return nil
}

// MarkAcked records backend acknowledgment. Idempotent; an already
// terminal row keeps its first terminal state.
func (l *Ledger) MarkAcked(recordID string) error {
	_, err := l.db.Exec(
		`UPDATE deliveries SET state = ?, updated_at = ? WHERE record_id = ? AND state NOT IN (?, ?)`,
		StateAcked, timestamp(time.Now()), recordID, StateAcked, StateDeadLettered,
	)
	if err != nil {
		return fmt.Errorf("ledger: mark acknowledged %s: %w", recordID, err)
	}
	return nil
}

// MarkDeadLettered records permanent failure with the preserved reason.
// Idempotent; an already terminal row keeps its first terminal state.
func (l *Ledger) MarkDeadLettered(recordID, reason string) error {
	_, err := l.db.Exec(
		`UPDATE deliveries SET state = ?, reason = ?, updated_at = ? WHERE record_id = ? AND state NOT IN (?, ?)`,
		StateDeadLettered, reason, timestamp(time.Now()), recordID, StateAcked, StateDeadLettered,
	)
	if err != nil {
		return fmt.Errorf("ledger: dead-letter %s: %w", recordID, err)
	}
	return nil
}

// IncAttempts bumps and returns the attempt counter for a record.
func (l *Ledger) IncAttempts(recordID string) (int, error) {
	if _, err := l.db.Exec(
		`UPDATE deliveries SET attempts = attempts + 1, updated_at = ? WHERE record_id = ?`,
		timestamp(time.Now()), recordID,
	); err != nil {
		return 0, fmt.Errorf("ledger: increment attempts %s: %w", recordID, err)
	}
	var n int
	err := l.db.QueryRow(`SELECT attempts FROM deliveries WHERE record_id = ?`, recordID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ledger: read attempts %s: %w", recordID, err)
	}
	return n, nil
}

// StateOf returns the recorded state for a record. Absent rows report
// StatePending.
func (l *Ledger) StateOf(recordID string) (State, error) {
	var s State
	err := l.db.QueryRow(`SELECT state FROM deliveries WHERE record_id = ?`, recordID).Scan(&s)
	if err == sql.ErrNoRows {
		return StatePending, nil
	}
	if err != nil {
		return "", fmt.Errorf("ledger: state of %s: %w", recordID, err)
	}
	return s, nil
}

// Deliverable reports whether a record still needs shipping: no row
// yet, or a non-terminal state. A lookup failure skips the record for
// this cycle and is reported on stderr so the gap is visible.
func (l *Ledger) Deliverable(recordID string) bool {
	s, err := l.StateOf(recordID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v (skipping this cycle)\n", err)
		return false
	}
	return !s.Terminal()
}

// TerminalAt returns when a record reached a terminal state, or false
// while it is still owed delivery.
func (l *Ledger) TerminalAt(recordID string) (time.Time, bool) {
	var s State
	var at string
	err := l.db.QueryRow(`SELECT state, updated_at FROM deliveries WHERE record_id = ?`, recordID).Scan(&s, &at)
	if err != nil || !s.Terminal() {
		return time.Time{}, false
	}
	t, err := time.Parse(timeLayout, at)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Counts returns the number of rows per state.
func (l *Ledger) Counts() (map[State]int, error) {
	rows, err := l.db.Query(`SELECT state, COUNT(*) FROM deliveries GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("ledger: counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[State]int)
	for rows.Next() {
		var s State
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, fmt.Errorf("ledger: scan counts: %w", err)
		}
		counts[s] = n
	}
	return counts, rows.Err()
}

// DeadLetters returns all dead-lettered entries with their reasons.
func (l *Ledger) DeadLetters() ([]Entry, error) {
	rows, err := l.db.Query(
		`SELECT record_id, session_id, state, attempts, reason, updated_at FROM deliveries WHERE state = ? ORDER BY updated_at`,
		StateDeadLettered,
	)
	if err != nil {
		return nil, fmt.Errorf("ledger: dead letters: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var at string
		if err := rows.Scan(&e.RecordID, &e.SessionID, &e.State, &e.Attempts, &e.Reason, &at); err != nil {
			return nil, fmt.Errorf("ledger: scan dead letter: %w", err)
		}
		e.UpdatedAt, _ = time.Parse(timeLayout, at)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Requeue returns a dead-lettered record to pending with a fresh
// attempt budget.
func (l *Ledger) Requeue(recordID string) error {
	res, err := l.db.Exec(
		`UPDATE deliveries SET state = ?, attempts = 0, reason = '', updated_at = ? WHERE record_id = ? AND state = ?`,
		StatePending, timestamp(time.Now()), recordID, StateDeadLettered,
	)
	if err != nil {
		return fmt.Errorf("ledger: requeue %s: %w", recordID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("ledger: requeue %s: not dead-lettered", recordID)
	}
	return nil
}

// Prune deletes terminal rows older than the retention window. Safe to
// run any time: the corresponding spool segments are compacted
// separately and a re-drained record with no row simply re-tracks.
func (l *Ledger) Prune(retention time.Duration, nowTime time.Time) (int, error) {
	cutoff := timestamp(nowTime.Add(-retention))
	res, err := l.db.Exec(
		`DELETE FROM deliveries WHERE state IN (?, ?) AND updated_at < ?`,
		StateAcked, StateDeadLettered, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("ledger: prune: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// timeLayout is fixed-width UTC so string comparison in SQL matches
// chronological order (the prune cutoff relies on this; RFC3339Nano
// trims trailing zeros and would not sort).
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func timestamp(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
