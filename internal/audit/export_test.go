package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/symphony-fin/trustplane/internal/model"
)

func TestExportWritesBundleAndAuditsIt(t *testing.T) {
	log, path := newTestLog(t)
	for i := 0; i < 3; i++ {
		if _, err := log.Append(testEvent(model.DecisionAllow)); err != nil {
			t.Fatal(err)
		}
	}

	outPath := filepath.Join(filepath.Dir(path), "bundle.json")
	meta, err := log.Export(outPath)
	if err != nil {
		t.Fatal(err)
	}

	if meta.RecordCount != 3 {
		t.Fatalf("expected 3 exported records, got %d", meta.RecordCount)
	}
	if meta.SchemaVersion != bundleSchemaVersion {
		t.Fatalf("unexpected schema version %s", meta.SchemaVersion)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	var bundle Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		t.Fatal(err)
	}
	if len(bundle.Records) != 3 {
		t.Fatalf("expected 3 records in bundle, got %d", len(bundle.Records))
	}

	// Batch hash recomputes from the exported records.
	h := sha256.New()
	for _, rec := range bundle.Records {
		canonical, err := canonicalBytes(rec)
		if err != nil {
			t.Fatal(err)
		}
		h.Write(canonical)
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != bundle.Metadata.BatchHash {
		t.Fatalf("batch hash does not recompute: %s != %s", got, bundle.Metadata.BatchHash)
	}

	// The export itself lands on the chain, after the exported records.
	result := Verify(path)
	if !result.Valid {
		t.Fatalf("expected valid chain after export, got %s", result.Reason)
	}
	if result.Records != 4 {
		t.Fatalf("expected 4 records on the chain, got %d", result.Records)
	}
	records, err := ReadAll(path)
	if err != nil {
		t.Fatal(err)
	}
	last := records[len(records)-1]
	if last.EventType != EventEvidenceExport {
		t.Fatalf("expected EVIDENCE_EXPORT, got %s", last.EventType)
	}
	if !strings.Contains(last.Reason, bundle.Metadata.BatchHash) {
		t.Fatal("expected the export record to carry the batch hash")
	}
}

func TestExportRefusesCorruptedChain(t *testing.T) {
	log, path := newTestLog(t)
	if _, err := log.Append(testEvent(model.DecisionAllow)); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	tampered := strings.Replace(string(data), `"ALLOW"`, `"DENY"`, 1)
	if err := os.WriteFile(path, []byte(tampered), 0600); err != nil {
		t.Fatal(err)
	}

	outPath := filepath.Join(filepath.Dir(path), "bundle.json")
	if _, err := log.Export(outPath); err == nil {
		t.Fatal("expected export of a tampered chain to be refused")
	}
	if _, statErr := os.Stat(outPath); !os.IsNotExist(statErr) {
		t.Fatal("expected no bundle to be written for a tampered chain")
	}
}

func TestReadAllMissingLogYieldsNothing(t *testing.T) {
	records, err := ReadAll(filepath.Join(t.TempDir(), "absent.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}
