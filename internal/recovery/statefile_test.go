package recovery

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMachineMissingFileBootsLockdown(t *testing.T) {
	m, err := LoadMachine(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatal(err)
	}
	if m.Mode() != Lockdown {
		t.Fatalf("expected LOCKDOWN, got %s", m.Mode())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recovery.json")

	m := NewMachine()
	m.Transition(ControlOnly, "ops", "inc-1")
	if err := SaveMachine(path, m); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadMachine(path)
	if err != nil {
		t.Fatal(err)
	}
	st := loaded.State()
	if st.Mode != ControlOnly || st.IncidentID != "inc-1" {
		t.Fatalf("unexpected state after reload: %+v", st)
	}
}

func TestPendingVotesSurviveRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recovery.json")

	m := NewMachine()
	m.Transition(ControlOnly, "ops", "inc-1")
	if committed, _ := m.Transition(FullOperational, "alice", "inc-1"); committed {
		t.Fatal("expected first vote to hold")
	}
	if err := SaveMachine(path, m); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadMachine(path)
	if err != nil {
		t.Fatal(err)
	}

	// Alice's persisted vote must still be ignored as a duplicate...
	if committed, _ := loaded.Transition(FullOperational, "alice", "inc-1"); committed {
		t.Fatal("expected persisted duplicate vote not to commit")
	}
	// ...and still count toward quorum for a distinct second actor.
	committed, err := loaded.Transition(FullOperational, "bob", "inc-1")
	if err != nil {
		t.Fatal(err)
	}
	if !committed {
		t.Fatal("expected persisted vote plus a distinct actor to commit")
	}
}

func TestLoadMachineRejectsMalformedState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recovery.json")
	os.WriteFile(path, []byte("{broken"), 0600)

	if _, err := LoadMachine(path); err == nil {
		t.Fatal("expected malformed state file to be an error")
	}
}

func TestLoadMachineRejectsUnknownMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recovery.json")
	os.WriteFile(path, []byte(`{"mode":"PARTY_MODE","authorizedBy":[]}`), 0600)

	if _, err := LoadMachine(path); err == nil {
		t.Fatal("expected unknown mode to be an error")
	}
}

// vote runs one load-transition-save cycle under the state lock, the way
// each CLI invocation does.
func vote(t *testing.T, path string, target Mode, actor string) bool {
	t.Helper()
	unlock, err := LockState(path)
	if err != nil {
		t.Error(err)
		return false
	}
	defer unlock()

	m, err := LoadMachine(path)
	if err != nil {
		t.Error(err)
		return false
	}
	committed, err := m.Transition(target, actor, "inc-9")
	if err != nil {
		t.Error(err)
		return false
	}
	if err := SaveMachine(path, m); err != nil {
		t.Error(err)
		return false
	}
	return committed
}

func TestConcurrentVotersBothCountTowardQuorum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recovery.json")

	m := NewMachine()
	m.Transition(ControlOnly, "ops", "inc-9")
	if err := SaveMachine(path, m); err != nil {
		t.Fatal(err)
	}

	results := make(chan bool, 2)
	go func() { results <- vote(t, path, FullOperational, "alice") }()
	go func() { results <- vote(t, path, FullOperational, "bob") }()

	first, second := <-results, <-results
	if first == second {
		t.Fatalf("expected exactly one committing vote, got %v and %v", first, second)
	}

	final, err := LoadMachine(path)
	if err != nil {
		t.Fatal(err)
	}
	if final.Mode() != FullOperational {
		t.Fatalf("two distinct voters must reach quorum, got %s", final.Mode())
	}
	authorized := final.State().AuthorizedBy
	if len(authorized) != 2 {
		t.Fatalf("expected both voters recorded, got %v", authorized)
	}
}

func TestLockStateBlocksSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recovery.json")

	unlock, err := LockState(path)
	if err != nil {
		t.Fatal(err)
	}

	acquired := make(chan func() error)
	go func() {
		u, err := LockState(path)
		if err != nil {
			t.Error(err)
		}
		acquired <- u
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired the state lock while the first held it")
	case <-time.After(100 * time.Millisecond):
	}

	unlock()
	select {
	case u := <-acquired:
		if u != nil {
			u()
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second holder never acquired the state lock")
	}
}
