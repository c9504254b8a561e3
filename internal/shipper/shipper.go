// Package shipper drains the durable buffer on its own schedule and
// forwards batches to the ingestion backend. Delivery is at-least-once:
// transport failures retry the same batch with exponential backoff, and
// a record that keeps failing dead-letters after its attempt budget so
// one poison record never stalls the pipeline.
package shipper

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/ppiankov/toolscope/internal/buffer"
	"github.com/ppiankov/toolscope/internal/ledger"
	"github.com/ppiankov/toolscope/internal/record"
	"github.com/ppiankov/toolscope/internal/redact"
)

// Config holds shipper tuning.
type Config struct {
	BatchSize   int
	Interval    time.Duration
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	Redact      redact.Mode
}

// defaults for zero Config fields.
const (
	defaultBatchSize   = 100
	defaultInterval    = 15 * time.Second
	defaultMaxAttempts = 8
	defaultBackoffBase = 2 * time.Second
	defaultBackoffCap  = 5 * time.Minute
)

// Shipper is the long-lived shipping worker. It blocks only on network
// calls and inter-drain sleeps, never on the capture path.
type Shipper struct {
	buf      *buffer.Buffer
	led      *ledger.Ledger
	client   *Client
	cfg      Config
	failures int
}

// New creates a shipper over an open buffer and ledger.
func New(buf *buffer.Buffer, led *ledger.Ledger, client *Client, cfg Config) *Shipper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = defaultBackoffCap
	}
	return &Shipper{buf: buf, led: led, client: client, cfg: cfg}
}

// Run ships until ctx is cancelled. A spool watcher triggers prompt
// drains when new records land; a timer covers the watcher being
// unavailable and paces retries during backend outages.
func (s *Shipper) Run(ctx context.Context) error {
	events := make(chan struct{}, 1)
	go s.watchSpool(ctx, events)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		case <-events:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		shipped, err := s.ShipOnce(ctx)

		var delay time.Duration
		switch {
		case err != nil:
			s.failures++
			delay = s.backoff(s.failures)
			fmt.Fprintf(os.Stderr, "shipper: delivery failed (attempt %d, next in %s): %v\n", s.failures, delay.Round(time.Millisecond), err)
		case shipped > 0:
			// More may be waiting; drain again without sleeping a full
			// interval.
			s.failures = 0
			delay = 100 * time.Millisecond
		default:
			s.failures = 0
			delay = s.cfg.Interval
		}
		timer.Reset(delay)
	}
}

// ShipOnce drains one batch and forwards it. Returns the number of
// records acknowledged this cycle. A transport-level failure returns an
// error (the whole batch stays owed, never skipped ahead); per-record
// rejections are handled inside and do not fail the cycle.
func (s *Shipper) ShipOnce(ctx context.Context) (int, error) {
	recs, drainErr := s.buf.Drain(s.cfg.BatchSize, s.led.Deliverable)
	if drainErr != nil {
		fmt.Fprintf(os.Stderr, "shipper: drain: %v\n", drainErr)
	}
	if len(recs) == 0 {
		return 0, nil
	}

	ids := make([]string, len(recs))
	for i, rec := range recs {
		ids[i] = rec.RecordID
		if err := s.led.Track(rec.RecordID, rec.SessionID); err != nil {
			return 0, err
		}
	}
	if err := s.led.MarkInFlight(ids); err != nil {
		return 0, err
	}

	batch := &record.Batch{
		BatchID: uuid.NewString(),
		Records: s.outbound(recs),
	}

	resp, err := s.client.SendBatch(ctx, batch)
	if err != nil {
		s.noteFailure(recs, fmt.Sprintf("delivery attempts exhausted: %v", err))
		return 0, err
	}

	byID := make(map[string]record.BatchResult, len(resp.Results))
	for _, res := range resp.Results {
		byID[res.RecordID] = res
	}

	acked := 0
	for _, rec := range recs {
		res, ok := byID[rec.RecordID]
		if !ok {
			// Backend did not rule on this record; treat as transient.
			s.noteFailure([]*record.Record{rec}, "delivery attempts exhausted: no verdict from backend")
			continue
		}
		switch res.Status {
		case record.StatusAccepted, record.StatusDuplicate:
			if err := s.led.MarkAcked(rec.RecordID); err != nil {
				return acked, err
			}
			acked++
		default:
			reason := res.Reason
			if reason == "" {
				reason = "rejected by backend"
			}
			s.noteFailure([]*record.Record{rec}, reason)
		}
	}
	return acked, nil
}

// noteFailure bumps attempt counters and dead-letters records whose
// budget is spent; the rest return to pending for the next cycle.
func (s *Shipper) noteFailure(recs []*record.Record, reason string) {
	for _, rec := range recs {
		n, err := s.led.IncAttempts(rec.RecordID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "shipper: %v\n", err)
			continue
		}
		if n >= s.cfg.MaxAttempts {
			if err := s.led.MarkDeadLettered(rec.RecordID, reason); err != nil {
				fmt.Fprintf(os.Stderr, "shipper: %v\n", err)
			}
			continue
		}
		if err := s.led.MarkPending(rec.RecordID); err != nil {
			fmt.Fprintf(os.Stderr, "shipper: %v\n", err)
		}
	}
}

// outbound prepares the shipped copies. The spool keeps originals;
// redaction only touches what leaves the host.
func (s *Shipper) outbound(recs []*record.Record) []*record.Record {
	if s.cfg.Redact == redact.ModeOff {
		return recs
	}
	out := make([]*record.Record, len(recs))
	for i, rec := range recs {
		clone := *rec
		clone.ActionDetails.Command = redact.Scrub(clone.ActionDetails.Command)
		clone.RawPayload = redact.Scrub(clone.RawPayload)
		out[i] = &clone
	}
	return out
}

// backoff returns the delay before retry n (1-based): exponential with
// jitter, capped.
func (s *Shipper) backoff(n int) time.Duration {
	d := s.cfg.BackoffBase
	for i := 1; i < n && d < s.cfg.BackoffCap; i++ {
		d *= 2
	}
	if d > s.cfg.BackoffCap {
		d = s.cfg.BackoffCap
	}
	// Half fixed, half jitter: avoids synchronized retry storms from
	// several hosts sharing one backend.
	return d/2 + rand.N(d/2+1)
}

// watchSpool nudges the run loop when a segment is created or appended.
// Best effort: if fsnotify is unavailable the interval timer still
// drains.
func (s *Shipper) watchSpool(ctx context.Context, events chan<- struct{}) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return
	}
	defer watcher.Close()

	if err := watcher.Add(s.buf.Dir()); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if filepath.Ext(event.Name) != ".jsonl" {
				continue
			}
			select {
			case events <- struct{}{}:
			default:
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}
