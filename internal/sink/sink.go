// Package sink is a development ingestion backend: it accepts record
// batches over HTTP, dedupes on record_id, and stores accepted records
// in SQLite. It stands in for the real aggregation backend in local
// setups and end-to-end tests.
package sink

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "modernc.org/sqlite"

	"github.com/ppiankov/toolscope/internal/record"
)

// maxLineBytes rejects records whose encoded form is implausibly large.
const maxLineBytes = 1 << 20

// Store persists accepted records and enforces record_id idempotency.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the sink database.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sink: open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sink: enable WAL: %w", err)
	}
	schema := `CREATE TABLE IF NOT EXISTS records (
		record_id   TEXT PRIMARY KEY,
		session_id  TEXT NOT NULL,
		tool_name   TEXT NOT NULL,
		scope_flag  INTEGER NOT NULL,
		payload     TEXT NOT NULL,
		received_at TEXT NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sink: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Ingest stores one record. Returns the per-record status: duplicate
// record ids are acknowledged without a second insert (idempotent under
// record_id), malformed records are rejected with a reason.
func (s *Store) Ingest(rec *record.Record) record.BatchResult {
	res := record.BatchResult{RecordID: rec.RecordID}

	if reason := validate(rec); reason != "" {
		res.Status = record.StatusRejected
		res.Reason = reason
		return res
	}

	payload, err := record.Encode(rec)
	if err != nil {
		res.Status = record.StatusRejected
		res.Reason = fmt.Sprintf("encode: %v", err)
		return res
	}

	r, err := s.db.Exec(
		`INSERT OR IGNORE INTO records (record_id, session_id, tool_name, scope_flag, payload, received_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RecordID, rec.SessionID, rec.ToolName, boolInt(rec.ScopeFlag), string(payload), time.Now().UTC().Format(record.TimestampLayout),
	)
	if err != nil {
		res.Status = record.StatusRejected
		res.Reason = fmt.Sprintf("store: %v", err)
		return res
	}
	if n, _ := r.RowsAffected(); n == 0 {
		res.Status = record.StatusDuplicate
		return res
	}
	res.Status = record.StatusAccepted
	return res
}

// Count returns the number of stored records.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sink: count: %w", err)
	}
	return n, nil
}

func validate(rec *record.Record) string {
	if rec.RecordID == "" {
		return "empty record_id"
	}
	if rec.SessionID == "" {
		return "empty session_id"
	}
	if rec.Timestamp == "" {
		return "empty timestamp"
	}
	if len(rec.RawPayload) > maxLineBytes {
		return "raw_payload exceeds size limit"
	}
	return ""
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Handler returns the sink HTTP API: POST /v1/batches plus a health
// probe.
func Handler(store *Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Post("/v1/batches", func(w http.ResponseWriter, req *http.Request) {
		var batch record.Batch
		if err := json.NewDecoder(req.Body).Decode(&batch); err != nil {
			http.Error(w, fmt.Sprintf("invalid batch: %v", err), http.StatusBadRequest)
			return
		}

		resp := record.BatchResponse{Results: make([]record.BatchResult, 0, len(batch.Records))}
		for _, rec := range batch.Records {
			resp.Results = append(resp.Results, store.Ingest(rec))
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	return r
}

// Serve runs the sink on addr. Blocks until the server stops.
func Serve(addr string, store *Store) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(store),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}
