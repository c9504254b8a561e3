package buffer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/ppiankov/toolscope/internal/record"
)

// chainTail is the state needed to append the next record to a segment:
// the last assigned sequence number, the last timestamp, and the hash
// of the last line.
type chainTail struct {
	Size      int64  `json:"size"`
	Seq       uint64 `json:"seq"`
	Timestamp string `json:"ts"`
	Hash      string `json:"hash"`
}

// recoverTail returns the chain tail for an open segment. The sidecar
// cache makes the common case O(1); a missing or stale sidecar (size
// mismatch after a crash between write and cache update) falls back to
// scanning the segment, which is always authoritative.
func recoverTail(f *os.File, path string) (chainTail, error) {
	fi, err := f.Stat()
	if err != nil {
		return chainTail{}, err
	}
	if fi.Size() == 0 {
		return chainTail{Hash: GenesisHash}, nil
	}

	if data, err := os.ReadFile(path + tailExt); err == nil {
		var cached chainTail
		if json.Unmarshal(data, &cached) == nil && cached.Size == fi.Size() && cached.Hash != "" {
			return cached, nil
		}
	}

	return scanTail(f)
}

// scanTail reads the whole segment to find the last line.
func scanTail(f *os.File) (chainTail, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return chainTail{}, err
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var lastLine []byte
	for scanner.Scan() {
		lastLine = append(lastLine[:0], scanner.Bytes()...)
	}
	if err := scanner.Err(); err != nil {
		return chainTail{}, err
	}
	if len(lastLine) == 0 {
		return chainTail{Hash: GenesisHash}, nil
	}

	rec, err := record.Decode(lastLine)
	if err != nil {
		return chainTail{}, fmt.Errorf("segment tail is not a valid record: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		return chainTail{}, err
	}
	return chainTail{
		Size:      fi.Size(),
		Seq:       rec.Seq,
		Timestamp: rec.Timestamp,
		Hash:      HashLine(lastLine),
	}, nil
}

// writeTailCache refreshes the sidecar after a successful append. Best
// effort: the cache is advisory, a failed write just means the next
// append rescans.
func writeTailCache(path string, f *os.File, rec *record.Record, line []byte) {
	fi, err := f.Stat()
	if err != nil {
		return
	}
	tail := chainTail{
		Size:      fi.Size(),
		Seq:       rec.Seq,
		Timestamp: rec.Timestamp,
		Hash:      HashLine(line),
	}
	data, err := json.Marshal(tail)
	if err != nil {
		return
	}
	_ = os.WriteFile(path+tailExt, data, 0600)
}

// readSegment returns all records in a segment together with the raw
// lines (needed for chain verification). The read takes a shared lock
// so an in-progress append never yields a torn line.
func readSegment(path string) ([]*record.Record, [][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("buffer: open segment: %w", err)
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_SH); err != nil {
		return nil, nil, fmt.Errorf("buffer: lock segment: %w", err)
	}
	defer func() { _ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN) }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var recs []*record.Record
	var lines [][]byte
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())

		rec, err := record.Decode(line)
		if err != nil {
			return nil, nil, fmt.Errorf("buffer: %s line %d: %w", path, lineNum, err)
		}
		recs = append(recs, rec)
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("buffer: scan segment: %w", err)
	}
	return recs, lines, nil
}
