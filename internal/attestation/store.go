// Package attestation records ingress attestations. The principle is
// "no ingress, no execution": an execution-intent capability is only
// evaluable when an attestation record bearing a valid sequence identifier
// exists for the originating request.
package attestation

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// validRequestID matches alphanumeric, dash, underscore, and dot only.
var validRequestID = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

func validateRequestID(id string) error {
	if id == "" {
		return fmt.Errorf("request id must not be empty")
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("request id must not contain '..'")
	}
	if !validRequestID.MatchString(id) {
		return fmt.Errorf("request id contains invalid characters")
	}
	return nil
}

// Record is one ingress attestation.
type Record struct {
	SequenceID int64     `json:"sequence_id"`
	RequestID  string    `json:"request_id"`
	CallerID   string    `json:"caller_id"`
	RecordHash string    `json:"record_hash"`
	AttestedAt time.Time `json:"attested_at"`
}

// Store manages attestation files on disk, one JSON file per request.
// Sequence identifiers are monotonic per store.
type Store struct {
	dir  string
	mu   sync.Mutex
	next int64
}

// NewStore creates a Store backed by the given directory. The next sequence
// identifier is recovered from the existing records.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("attestation: create directory: %w", err)
	}
	s := &Store{dir: dir, next: 1}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("attestation: scan directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		rec, err := s.read(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		if rec.SequenceID >= s.next {
			s.next = rec.SequenceID + 1
		}
	}
	return s, nil
}

// DefaultDir returns the default attestation store directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "trustplane-attest")
	}
	return filepath.Join(home, ".trustplane", "attest")
}

// Attest records an ingress attestation for a request. Idempotent: a request
// already attested returns its existing record.
func (s *Store) Attest(requestID, callerID string) (*Record, error) {
	if err := validateRequestID(requestID); err != nil {
		return nil, fmt.Errorf("attestation: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, err := s.read(requestID); err == nil {
		return rec, nil
	}

	rec := &Record{
		SequenceID: s.next,
		RequestID:  requestID,
		CallerID:   callerID,
		AttestedAt: time.Now().UTC(),
	}
	rec.RecordHash = hashRecord(rec)

	if err := s.writeAtomic(s.path(requestID), rec); err != nil {
		return nil, fmt.Errorf("attestation: write record: %w", err)
	}
	s.next++
	return rec, nil
}

// Lookup returns the attestation for a request, or ok=false when none
// exists or the stored record is malformed (fail closed).
func (s *Store) Lookup(requestID string) (*Record, bool) {
	if validateRequestID(requestID) != nil {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.read(requestID)
	if err != nil {
		return nil, false
	}
	if rec.SequenceID <= 0 || hashRecord(rec) != rec.RecordHash {
		return nil, false
	}
	return rec, true
}

func (s *Store) path(requestID string) string {
	return filepath.Join(s.dir, requestID+".json")
}

func (s *Store) read(requestID string) (*Record, error) {
	data, err := os.ReadFile(s.path(requestID))
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) writeAtomic(path string, rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// hashRecord covers the sequence, request, caller, and timestamp fields.
func hashRecord(rec *Record) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s", rec.SequenceID, rec.RequestID, rec.CallerID, rec.AttestedAt.UTC().Format(time.RFC3339Nano))
	return hex.EncodeToString(h.Sum(nil))
}
