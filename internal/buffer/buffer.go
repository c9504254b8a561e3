// Package buffer is the durable local store between the capture path
// and the shipper. Records land in per-session JSONL segments with
// SHA-256 hash chaining for tamper evidence. Appends from unrelated
// short-lived processes are serialized per segment with flock, so
// concurrent sessions never contend with each other and a crash after
// a successful append never loses the record.
package buffer

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"syscall"

	"github.com/ppiankov/toolscope/internal/record"
)

// GenesisHash is the prev_hash for the first record in a new segment.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// ErrCaptureFailed signals that durable storage is unavailable (disk
// full, permission denied). The caller is expected to report it loudly;
// the buffer never hides the condition.
var ErrCaptureFailed = errors.New("capture failed: durable buffer unavailable")

// segmentExt is the spool segment suffix. Sidecar tail caches use
// tailExt and are excluded from segment listings.
const (
	segmentExt = ".jsonl"
	tailExt    = ".tail"
)

// sessionSafe matches characters allowed in a segment filename. Session
// identifiers are externally guaranteed unique per run; anything
// unsafe for a filename is folded to '-'.
var sessionSafe = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// Buffer owns a spool directory of per-session segments.
type Buffer struct {
	dir string
}

// Open prepares a buffer rooted at dir, creating it if needed.
func Open(dir string) (*Buffer, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("%w: create spool dir: %v", ErrCaptureFailed, err)
	}
	return &Buffer{dir: dir}, nil
}

// Dir returns the spool directory path.
func (b *Buffer) Dir() string { return b.dir }

// Append durably stores a record and returns its assigned record id.
// The buffer assigns Seq (per-session monotonic counter), RecordID
// (session id + seq), and PrevHash (segment chain), and clamps the
// timestamp so it never decreases within the session. The write is the
// commit point: lock, encode, write, fsync, unlock.
func (b *Buffer) Append(rec *record.Record) (string, error) {
	if rec.SessionID == "" {
		return "", fmt.Errorf("%w: record has no session id", ErrCaptureFailed)
	}

	path := b.segmentPath(rec.SessionID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0600)
	if err != nil {
		return "", fmt.Errorf("%w: open segment: %v", ErrCaptureFailed, err)
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return "", fmt.Errorf("%w: lock segment: %v", ErrCaptureFailed, err)
	}
	defer func() { _ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN) }()

	tail, err := recoverTail(f, path)
	if err != nil {
		return "", fmt.Errorf("%w: recover chain tail: %v", ErrCaptureFailed, err)
	}

	rec.Seq = tail.Seq + 1
	rec.RecordID = fmt.Sprintf("%s:%06d", rec.SessionID, rec.Seq)
	rec.PrevHash = tail.Hash
	if tail.Timestamp != "" && rec.Timestamp < tail.Timestamp {
		// Wall clock stepped backwards between invocations. Clamp so
		// timestamps stay non-decreasing within the session.
		rec.Timestamp = tail.Timestamp
	}

	line, err := record.Encode(rec)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}

	if _, err := f.Write(append(line, '\n')); err != nil {
		return "", fmt.Errorf("%w: write record: %v", ErrCaptureFailed, err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("%w: sync: %v", ErrCaptureFailed, err)
	}

	writeTailCache(path, f, rec, line)
	return rec.RecordID, nil
}

// segmentPath maps a session id to its spool segment.
func (b *Buffer) segmentPath(sessionID string) string {
	name := sessionSafe.ReplaceAllString(sessionID, "-")
	if len(name) > 128 {
		name = name[:128]
	}
	return filepath.Join(b.dir, name+segmentExt)
}

// segments lists spool segment paths in lexical order.
func (b *Buffer) segments() ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("buffer: read spool dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != segmentExt {
			continue
		}
		paths = append(paths, filepath.Join(b.dir, e.Name()))
	}
	return paths, nil
}

// HashLine returns "sha256:<hex>" of the given bytes.
func HashLine(line []byte) string {
	h := sha256.Sum256(line)
	return "sha256:" + hex.EncodeToString(h[:])
}

// Stats summarizes spool contents.
type Stats struct {
	Sessions   int   `json:"sessions"`
	Records    int   `json:"records"`
	SpoolBytes int64 `json:"spool_bytes"`
}

// Session returns the records captured for one session, in append
// order. A session with no segment yields no records and no error.
func (b *Buffer) Session(sessionID string) ([]*record.Record, error) {
	path := b.segmentPath(sessionID)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("buffer: stat segment: %w", err)
	}
	recs, _, err := readSegment(path)
	return recs, err
}

// Stat counts sessions, records, and bytes in the spool.
func (b *Buffer) Stat() (Stats, error) {
	paths, err := b.segments()
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Sessions: len(paths)}
	for _, p := range paths {
		recs, _, err := readSegment(p)
		if err != nil {
			return Stats{}, err
		}
		st.Records += len(recs)
		if fi, err := os.Stat(p); err == nil {
			st.SpoolBytes += fi.Size()
		}
	}
	return st, nil
}
