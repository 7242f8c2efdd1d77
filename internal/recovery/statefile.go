package recovery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// persistedState is the on-disk shape of a Machine. Pending dual-control
// votes are included so a half-collected FULL_OPERATIONAL transition
// survives process restarts; each vote is typically a separate CLI run.
type persistedState struct {
	State
	PendingTarget Mode     `json:"pendingTarget,omitempty"`
	PendingVotes  []string `json:"pendingVotes,omitempty"`
}

// DefaultStatePath returns ~/.trustplane/recovery.json.
func DefaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "recovery.json"
	}
	return filepath.Join(home, ".trustplane", "recovery.json")
}

// LockState takes an exclusive advisory lock serializing the
// load-transition-save cycle across processes. Without it, two
// concurrent voters both load zero prior approvals and the second save
// erases the first vote. Blocks until the lock is free; the returned
// release must be called once the new state is saved.
func LockState(path string) (func() error, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("recovery: create state dir: %w", err)
		}
	}
	f, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("recovery: open state lock: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("recovery: lock state: %w", err)
	}
	return func() error {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		return f.Close()
	}, nil
}

// LoadMachine restores a Machine from a state file. A missing file yields
// a fresh machine in LOCKDOWN; an unreadable or malformed file is an
// error, not a silent reset to a permissive state.
func LoadMachine(path string) (*Machine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewMachine(), nil
		}
		return nil, fmt.Errorf("recovery: read state: %w", err)
	}

	var ps persistedState
	if err := json.Unmarshal(data, &ps); err != nil {
		return nil, fmt.Errorf("recovery: parse state: %w", err)
	}
	if _, ok := allowedTransitions[ps.Mode]; !ok {
		return nil, fmt.Errorf("recovery: state file has unknown mode %q", ps.Mode)
	}

	m := NewMachine()
	m.mode = ps.Mode
	m.incidentID = ps.IncidentID
	m.authorizedBy = append([]string(nil), ps.AuthorizedBy...)
	if !ps.Timestamp.IsZero() {
		m.timestamp = ps.Timestamp
	}
	m.pendingTarget = ps.PendingTarget
	m.pendingVotes = append([]string(nil), ps.PendingVotes...)
	return m, nil
}

// SaveMachine writes the machine state atomically.
func SaveMachine(path string, m *Machine) error {
	m.mu.Lock()
	ps := persistedState{
		State: State{
			Mode:         m.mode,
			IncidentID:   m.incidentID,
			AuthorizedBy: append([]string(nil), m.authorizedBy...),
			Timestamp:    m.timestamp,
		},
		PendingTarget: m.pendingTarget,
		PendingVotes:  append([]string(nil), m.pendingVotes...),
	}
	m.mu.Unlock()

	data, err := json.MarshalIndent(ps, "", "  ")
	if err != nil {
		return fmt.Errorf("recovery: encode state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("recovery: create state dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("recovery: write state: %w", err)
	}
	return os.Rename(tmp, path)
}
