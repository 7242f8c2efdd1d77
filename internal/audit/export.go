package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/symphony-fin/trustplane/internal/model"
)

// bundleSchemaVersion identifies the evidence bundle layout. Bump on any
// field change so downstream consumers can refuse what they don't know.
const bundleSchemaVersion = "v1"

// BundleMetadata binds an evidence bundle to one batch: the batch hash
// covers the canonical bytes of every exported record in order.
type BundleMetadata struct {
	BatchID       string `json:"batchId"`
	SchemaVersion string `json:"schemaVersion"`
	ExportedAt    string `json:"exportedAt"`
	RecordCount   int    `json:"recordCount"`
	BatchHash     string `json:"batchHash"`
}

// Bundle is a read-only evidence export of the chain. Records are copied
// as they stand; no reformatting, no derived data.
type Bundle struct {
	Metadata BundleMetadata `json:"metadata"`
	Records  []Record       `json:"records"`
}

// ReadAll parses every record in an audit log, in chain order. It does
// not verify the chain; callers that need integrity run Verify first.
func ReadAll(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: open log: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("audit: parse record %d: %w", len(records), err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: read log: %w", err)
	}
	return records, nil
}

// Export writes an evidence bundle of every record currently in the log
// and commits an EVIDENCE_EXPORT event to the chain. The chain must
// verify before anything is exported: tampered evidence is not evidence.
func (l *Log) Export(outPath string) (BundleMetadata, error) {
	result := Verify(l.path)
	if !result.Valid {
		return BundleMetadata{}, fmt.Errorf("audit: refusing export, chain invalid at record %d: %s",
			result.ViolationIndex, result.Reason)
	}

	records, err := ReadAll(l.path)
	if err != nil {
		return BundleMetadata{}, err
	}

	h := sha256.New()
	for _, rec := range records {
		canonical, err := canonicalBytes(rec)
		if err != nil {
			return BundleMetadata{}, err
		}
		h.Write(canonical)
	}

	meta := BundleMetadata{
		BatchID:       uuid.NewString(),
		SchemaVersion: bundleSchemaVersion,
		ExportedAt:    time.Now().UTC().Format(time.RFC3339Nano),
		RecordCount:   len(records),
		BatchHash:     hex.EncodeToString(h.Sum(nil)),
	}

	data, err := json.MarshalIndent(Bundle{Metadata: meta, Records: records}, "", "  ")
	if err != nil {
		return BundleMetadata{}, fmt.Errorf("audit: encode bundle: %w", err)
	}
	tmp := outPath + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0600); err != nil {
		return BundleMetadata{}, fmt.Errorf("audit: write bundle: %w", err)
	}
	if err := os.Rename(tmp, outPath); err != nil {
		return BundleMetadata{}, fmt.Errorf("audit: write bundle: %w", err)
	}

	_, err = l.Append(Event{
		Type:      EventEvidenceExport,
		RequestID: "export-" + meta.BatchID,
		TenantID:  "platform",
		Subject: Subject{
			Type: model.SubjectService,
			ID:   "evidence-export",
			OU:   "evidence-export",
		},
		Action:        &Action{Resource: outPath},
		Decision:      model.DecisionExecuted,
		PolicyVersion: "n/a",
		Reason:        fmt.Sprintf("exported %d records, batch hash %s", meta.RecordCount, meta.BatchHash),
	})
	if err != nil {
		return BundleMetadata{}, err
	}
	return meta, nil
}
