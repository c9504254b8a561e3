package buffer

import (
	"errors"
	"os"
	"sort"
	"time"

	"github.com/ppiankov/toolscope/internal/record"
)

// Drain returns up to max records whose ids the pending predicate
// accepts, in append order per session and oldest-first globally.
// Timestamps are non-decreasing within a session, so sorting by
// (timestamp, session, seq) can never reorder a session's records.
// Unreadable segments are skipped and reported through the returned
// error; readable records still ship.
func (b *Buffer) Drain(max int, pending func(recordID string) bool) ([]*record.Record, error) {
	paths, err := b.segments()
	if err != nil {
		return nil, err
	}

	var out []*record.Record
	var errs []error
	for _, p := range paths {
		recs, _, err := readSegment(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, rec := range recs {
			if pending(rec.RecordID) {
				out = append(out, rec)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		if out[i].SessionID != out[j].SessionID {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].Seq < out[j].Seq
	})

	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out, errors.Join(errs...)
}

// Compact removes segments whose records are all in a terminal delivery
// state and past the retention window. terminalAt reports when a record
// reached acknowledged or dead-lettered, or false while it is still
// owed delivery. A segment holding even one non-terminal record is
// never touched: unbounded spool growth is preferred over data loss.
func (b *Buffer) Compact(retention time.Duration, now time.Time, terminalAt func(recordID string) (time.Time, bool)) (int, error) {
	paths, err := b.segments()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, p := range paths {
		recs, _, err := readSegment(p)
		if err != nil {
			continue
		}
		if len(recs) == 0 {
			continue
		}
		reclaimable := true
		for _, rec := range recs {
			at, terminal := terminalAt(rec.RecordID)
			if !terminal || now.Sub(at) < retention {
				reclaimable = false
				break
			}
		}
		if !reclaimable {
			continue
		}
		// Whole-segment removal keeps every surviving chain intact:
		// chains never span segments.
		if err := os.Remove(p); err != nil {
			continue
		}
		_ = os.Remove(p + tailExt)
		removed++
	}
	return removed, nil
}

// VerifyResult is the chain verification outcome for one segment.
type VerifyResult struct {
	Segment   string `json:"segment"`
	Valid     bool   `json:"valid"`
	Records   int    `json:"records"`
	Error     string `json:"error,omitempty"`
	ErrorLine int    `json:"error_line,omitempty"`
}

// Verify validates the hash chain of every spool segment: the first
// record must reference the genesis hash, every subsequent record the
// hash of the previous line, and sequence numbers must increase by one.
func (b *Buffer) Verify() ([]VerifyResult, error) {
	paths, err := b.segments()
	if err != nil {
		return nil, err
	}

	results := make([]VerifyResult, 0, len(paths))
	for _, p := range paths {
		results = append(results, verifySegment(p))
	}
	return results, nil
}

func verifySegment(path string) VerifyResult {
	res := VerifyResult{Segment: path}

	recs, lines, err := readSegment(path)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	prevHash := GenesisHash
	var prevSeq uint64
	for i, rec := range recs {
		if rec.PrevHash != prevHash {
			res.Error = "hash mismatch"
			res.ErrorLine = i + 1
			return res
		}
		if rec.Seq != prevSeq+1 {
			res.Error = "sequence gap"
			res.ErrorLine = i + 1
			return res
		}
		prevHash = HashLine(lines[i])
		prevSeq = rec.Seq
	}

	res.Valid = true
	res.Records = len(recs)
	return res
}
