package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/symphony-fin/trustplane/internal/model"
)

// Log is the append-only NDJSON audit chain. Appends are serialized
// through a single-writer mutex: two concurrent appenders must never read
// the same tail hash and fork the chain.
type Log struct {
	path     string
	file     *os.File
	mu       sync.Mutex
	lastHash string
}

// Event is the caller-supplied portion of a record; the log fills in the
// event ID, timestamp, and integrity fields.
type Event struct {
	Type          EventType
	RequestID     string
	TenantID      string
	Subject       Subject
	Action        *Action
	Decision      model.Decision
	PolicyVersion string
	Reason        string
}

// Open opens (or creates) an audit log for appending. If the file already
// exists, the chain tail is recovered from the last record; an unreadable
// tail is a hard error, because blind writes would fork the chain.
//
// Open takes an exclusive advisory lock on the file and holds it until
// Close. The in-process mutex only serializes appenders sharing one Log;
// a second process opening the same chain blocks here instead of
// recovering the same tail hash and forking the chain.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("audit: open file: %w", err)
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX); err != nil {
		file.Close()
		return nil, fmt.Errorf("audit: lock log: %w", err)
	}

	// Tail recovery happens under the lock, never before it.
	lastHash := GenesisHash
	if info, err := file.Stat(); err == nil && info.Size() > 0 {
		tail, err := readLastRecord(path)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("audit: cannot recover chain tail: %w", err)
		}
		if tail.Integrity == nil || !validHex64(tail.Integrity.Hash) {
			file.Close()
			return nil, fmt.Errorf("audit: last record carries no valid integrity hash")
		}
		lastHash = tail.Integrity.Hash
	}

	return &Log{path: path, file: file, lastHash: lastHash}, nil
}

// Append writes one record to the chain and returns it with its integrity
// fields populated. The write is synced before the tail hash advances.
func (l *Log) Append(ev Event) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := Record{
		EventID:       uuid.NewString(),
		EventType:     ev.Type,
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		RequestID:     ev.RequestID,
		TenantID:      ev.TenantID,
		Subject:       ev.Subject,
		Action:        ev.Action,
		Decision:      ev.Decision,
		PolicyVersion: ev.PolicyVersion,
		Reason:        ev.Reason,
	}

	canonical, err := canonicalBytes(rec)
	if err != nil {
		return Record{}, err
	}
	rec.Integrity = &Integrity{
		PrevHash: l.lastHash,
		Hash:     chainHash(canonical, l.lastHash),
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("audit: marshal record: %w", err)
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return Record{}, fmt.Errorf("audit: write record: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return Record{}, fmt.Errorf("audit: sync: %w", err)
	}

	l.lastHash = rec.Integrity.Hash
	return rec, nil
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

func readLastRecord(path string) (Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return Record{}, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	var lastLine []byte
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		lastLine = append(lastLine[:0], scanner.Bytes()...)
	}
	if err := scanner.Err(); err != nil {
		return Record{}, err
	}
	if len(lastLine) == 0 {
		return Record{}, fmt.Errorf("no records")
	}

	var rec Record
	if err := json.Unmarshal(lastLine, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}
