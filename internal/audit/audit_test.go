package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/symphony-fin/trustplane/internal/model"
)

func newTestLog(t *testing.T) (*Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-audit.jsonl")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open audit log: %v", err)
	}
	return l, path
}

func testEvent(decision model.Decision) Event {
	return Event{
		Type:      EventAuthzAllow,
		RequestID: "req-test123",
		TenantID:  "tenant-a",
		Subject: Subject{
			Type: model.SubjectService,
			ID:   "control-plane",
			OU:   "control-plane",
		},
		Action:        &Action{Capability: "instruction:submit", Resource: "instr-1"},
		Decision:      decision,
		PolicyVersion: "v3",
	}
}

func TestSequentialAppendsProduceValidChain(t *testing.T) {
	l, path := newTestLog(t)

	for i := 0; i < 5; i++ {
		if _, err := l.Append(testEvent(model.DecisionAllow)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	l.Close()

	result := Verify(path)
	if !result.Valid {
		t.Fatalf("expected valid chain, got violation at record %d: %s", result.ViolationIndex, result.Reason)
	}
	if result.Records != 5 {
		t.Fatalf("expected 5 records, got %d", result.Records)
	}
}

func TestVerifyDetectsTamperedRecord(t *testing.T) {
	l, path := newTestLog(t)

	for i := 0; i < 3; i++ {
		if _, err := l.Append(testEvent(model.DecisionAllow)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	l.Close()

	// Tamper: flip the decision in the middle record
	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	lines[1] = strings.Replace(lines[1], `"ALLOW"`, `"DENY"`, 1)
	os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644)

	result := Verify(path)
	if result.Valid {
		t.Fatal("expected tampered chain to be invalid")
	}
	if result.ViolationIndex != 1 {
		t.Fatalf("expected violation at record 1, got %d", result.ViolationIndex)
	}
}

func TestVerifyDetectsDeletedRecord(t *testing.T) {
	l, path := newTestLog(t)

	for i := 0; i < 3; i++ {
		if _, err := l.Append(testEvent(model.DecisionAllow)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	l.Close()

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	remaining := []string{lines[0], lines[2]}
	os.WriteFile(path, []byte(strings.Join(remaining, "\n")+"\n"), 0644)

	result := Verify(path)
	if result.Valid {
		t.Fatal("expected chain with deleted record to be invalid")
	}
	if result.ViolationIndex != 1 {
		t.Fatalf("expected violation at record 1, got %d", result.ViolationIndex)
	}
}

func TestVerifyDetectsInsertedRecord(t *testing.T) {
	l, path := newTestLog(t)

	for i := 0; i < 3; i++ {
		if _, err := l.Append(testEvent(model.DecisionAllow)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	l.Close()

	// Insert a fabricated record between records 0 and 1
	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	fake := Record{
		EventID:   "fake",
		EventType: EventAuthzDeny,
		Decision:  model.DecisionDeny,
		Integrity: &Integrity{PrevHash: GenesisHash, Hash: strings.Repeat("ab", 32)},
	}
	fakeJSON, _ := json.Marshal(fake)
	inserted := []string{lines[0], string(fakeJSON), lines[1], lines[2]}
	os.WriteFile(path, []byte(strings.Join(inserted, "\n")+"\n"), 0644)

	result := Verify(path)
	if result.Valid {
		t.Fatal("expected chain with inserted record to be invalid")
	}
}

func TestVerifyDetectsReorderedRecords(t *testing.T) {
	l, path := newTestLog(t)

	for i := 0; i < 3; i++ {
		if _, err := l.Append(testEvent(model.DecisionAllow)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	l.Close()

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	swapped := []string{lines[1], lines[0], lines[2]}
	os.WriteFile(path, []byte(strings.Join(swapped, "\n")+"\n"), 0644)

	result := Verify(path)
	if result.Valid {
		t.Fatal("expected reordered chain to be invalid")
	}
	if result.ViolationIndex != 0 {
		t.Fatalf("expected violation at record 0, got %d", result.ViolationIndex)
	}
}

func TestEmptyLogPassesVerification(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.jsonl")
	os.WriteFile(path, []byte{}, 0644)

	result := Verify(path)
	if !result.Valid {
		t.Fatalf("expected empty log to be valid, got: %s", result.Reason)
	}
	if result.Records != 0 {
		t.Fatalf("expected 0 records, got %d", result.Records)
	}
}

func TestMissingLogPassesVerification(t *testing.T) {
	result := Verify(filepath.Join(t.TempDir(), "does-not-exist.jsonl"))
	if !result.Valid {
		t.Fatalf("expected missing log to be valid, got: %s", result.Reason)
	}
}

func TestUnparseableLineIsFormatErrorNotCrash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.jsonl")
	os.WriteFile(path, []byte("{not json at all\n"), 0644)

	result := Verify(path)
	if result.Valid {
		t.Fatal("expected garbage log to be invalid")
	}
	if result.ViolationIndex != 0 {
		t.Fatalf("expected violation at record 0, got %d", result.ViolationIndex)
	}
	if !strings.Contains(result.Reason, "format error") {
		t.Fatalf("expected format error reason, got %q", result.Reason)
	}
}

func TestConcurrentAppendsSerializeCorrectly(t *testing.T) {
	l, path := newTestLog(t)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Append(testEvent(model.DecisionAllow))
		}()
	}
	wg.Wait()
	l.Close()

	result := Verify(path)
	if !result.Valid {
		t.Fatalf("expected valid chain after concurrent appends, got violation at record %d: %s", result.ViolationIndex, result.Reason)
	}
	if result.Records != 100 {
		t.Fatalf("expected 100 records, got %d", result.Records)
	}
}

func TestFirstRecordChainsFromGenesis(t *testing.T) {
	l, path := newTestLog(t)
	l.Append(testEvent(model.DecisionAllow))
	l.Close()

	data, _ := os.ReadFile(path)
	var rec Record
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &rec); err != nil {
		t.Fatal(err)
	}

	if rec.Integrity == nil {
		t.Fatal("expected integrity field")
	}
	if rec.Integrity.PrevHash != GenesisHash {
		t.Fatalf("expected genesis prevHash %s, got %s", GenesisHash, rec.Integrity.PrevHash)
	}
	if !validHex64(rec.Integrity.Hash) {
		t.Fatalf("expected 64-char lowercase hex hash, got %s", rec.Integrity.Hash)
	}
}

func TestChainHashIsDeterministic(t *testing.T) {
	canonical := []byte(`{"eventId":"e-1","eventType":"AUTHZ_ALLOW","decision":"ALLOW"}`)
	h1 := chainHash(canonical, GenesisHash)
	h2 := chainHash(canonical, GenesisHash)
	if h1 != h2 {
		t.Fatalf("expected same hash, got %s and %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Fatalf("expected 64 char hash, got %d", len(h1))
	}
	if h3 := chainHash(canonical, strings.Repeat("1", 64)); h3 == h1 {
		t.Fatal("expected different prevHash to change the hash")
	}
}

func TestCanonicalBytesExcludeIntegrity(t *testing.T) {
	rec := Record{
		EventID:   "e-1",
		EventType: EventAuthzAllow,
		Decision:  model.DecisionAllow,
	}
	bare, err := canonicalBytes(rec)
	if err != nil {
		t.Fatal(err)
	}
	rec.Integrity = &Integrity{PrevHash: GenesisHash, Hash: strings.Repeat("a", 64)}
	withIntegrity, err := canonicalBytes(rec)
	if err != nil {
		t.Fatal(err)
	}
	if string(bare) != string(withIntegrity) {
		t.Fatal("expected canonical bytes to be independent of the integrity field")
	}
}

func TestOpenExistingLogContinuesChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.jsonl")

	l1, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		l1.Append(testEvent(model.DecisionAllow))
	}
	l1.Close()

	l2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		l2.Append(testEvent(model.DecisionDeny))
	}
	l2.Close()

	result := Verify(path)
	if !result.Valid {
		t.Fatalf("expected valid chain after reopen, got violation at record %d: %s", result.ViolationIndex, result.Reason)
	}
	if result.Records != 5 {
		t.Fatalf("expected 5 records, got %d", result.Records)
	}
}

func TestOpenRefusesCorruptedTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt-tail.jsonl")

	l1, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	l1.Append(testEvent(model.DecisionAllow))
	l1.Close()

	f, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	f.WriteString("{truncated garbage\n")
	f.Close()

	if _, err := Open(path); err == nil {
		t.Fatal("expected Open to refuse a log with an unreadable tail")
	}
}

func TestVerifyReportsFormatErrorMessageAsData(t *testing.T) {
	// A parse error message must land in the reason string untouched;
	// nothing downstream interprets it.
	path := filepath.Join(t.TempDir(), "fmt.jsonl")
	os.WriteFile(path, []byte(`{"eventId": 42}`+"\n"), 0644)

	result := Verify(path)
	if result.Valid {
		t.Fatal("expected invalid")
	}
	if !strings.Contains(result.Reason, "format error at record 0") {
		t.Fatalf("expected format error reason, got %q", result.Reason)
	}
}

func TestOpenBlocksSecondHandleUntilClose(t *testing.T) {
	l1, path := newTestLog(t)
	if _, err := l1.Append(testEvent(model.DecisionAllow)); err != nil {
		t.Fatal(err)
	}

	acquired := make(chan *Log)
	go func() {
		l2, err := Open(path)
		if err != nil {
			t.Error(err)
			acquired <- nil
			return
		}
		acquired <- l2
	}()

	select {
	case <-acquired:
		t.Fatal("second open acquired the chain while the first held it")
	case <-time.After(100 * time.Millisecond):
	}

	l1.Close()
	select {
	case l2 := <-acquired:
		if l2 == nil {
			t.Fatal("second open failed")
		}
		defer l2.Close()
		if _, err := l2.Append(testEvent(model.DecisionAllow)); err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second open never acquired the chain")
	}

	if result := Verify(path); !result.Valid || result.Records != 2 {
		t.Fatalf("expected a valid 2-record chain, got %+v", result)
	}
}
