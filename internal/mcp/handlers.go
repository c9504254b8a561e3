package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/toolscope/internal/ledger"
	"github.com/ppiankov/toolscope/internal/record"
)

// StatusInput has no parameters.
type StatusInput struct{}

// StatusOutput mirrors the `toolscope status` counters.
type StatusOutput struct {
	Sessions     int   `json:"sessions"`
	Records      int   `json:"records"`
	SpoolBytes   int64 `json:"spool_bytes"`
	Pending      int   `json:"pending"`
	InFlight     int   `json:"in_flight"`
	Acknowledged int   `json:"acknowledged"`
	DeadLettered int   `json:"dead_lettered"`
}

// SessionRecordsInput selects one session's tail.
type SessionRecordsInput struct {
	SessionID string `json:"session_id" jsonschema:"session identifier to inspect"`
	Limit     int    `json:"limit,omitempty" jsonschema:"max records to return, most recent first (default 20)"`
}

// SessionRecordsOutput carries the selected records.
type SessionRecordsOutput struct {
	Records []*record.Record `json:"records"`
}

func (s *Server) handleStatus(_ context.Context, _ *mcpsdk.CallToolRequest, _ StatusInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
	var out StatusOutput

	st, err := s.buf.Stat()
	if err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, out, err
	}
	out.Sessions = st.Sessions
	out.Records = st.Records
	out.SpoolBytes = st.SpoolBytes

	counts, err := s.led.Counts()
	if err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, out, err
	}
	out.Pending = counts[ledger.StatePending]
	out.InFlight = counts[ledger.StateInFlight]
	out.Acknowledged = counts[ledger.StateAcked]
	out.DeadLettered = counts[ledger.StateDeadLettered]

	return nil, out, nil
}

func (s *Server) handleSessionRecords(_ context.Context, _ *mcpsdk.CallToolRequest, input SessionRecordsInput) (*mcpsdk.CallToolResult, SessionRecordsOutput, error) {
	var out SessionRecordsOutput

	recs, err := s.buf.Session(input.SessionID)
	if err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, out, err
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	if len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	out.Records = recs
	return nil, out, nil
}
